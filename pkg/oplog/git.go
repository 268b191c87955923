package oplog

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/crdt"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// GitRemote names a git remote this process's repository fetches from and
// pushes to: a name/URL pair plus optional basic-auth credentials.
type GitRemote struct {
	Name string
	URL  string
	Auth transport.AuthMethod
}

// NewGitRemote returns an unauthenticated remote, suitable for a repository
// that is already reachable (e.g. over SSH agent forwarding or a local
// path).
func NewGitRemote(name, url string) *GitRemote {
	return &GitRemote{Name: name, URL: url}
}

// NewGitRemoteUserPass returns a remote authenticated with a username and
// password (or personal access token).
func NewGitRemoteUserPass(name, url, user, pass string) *GitRemote {
	return &GitRemote{Name: name, URL: url, Auth: &githttp.BasicAuth{Username: user, Password: pass}}
}

// GitLog is the production LogReplicable: each actor owns a branch
// (refs/heads/actor/<hex>); a
// consumer's cursor into its own actor's branch lives on a parallel
// refs/heads/acked/<hex> branch, while the cursor into every *other*
// actor's branch lives on a local refs/heads/actor/<hex> branch of the same
// name the remote fetch populates under refs/remotes/<remote>/actor/<hex>,
// which avoids a second branch namespace for remote actors. Each commit holds exactly one parent (or none, for the
// first op) and a tree with a single blob entry named "op".
type GitLog[O any] struct {
	actor crdt.Actor
	repo  *git.Repository
}

// NewGitLog wraps an already-open repository.
func NewGitLog[O any](actor crdt.Actor, repo *git.Repository) *GitLog[O] {
	return &GitLog[O]{actor: actor, repo: repo}
}

// OpenGitLog opens an existing repository at path.
func OpenGitLog[O any](actor crdt.Actor, path string) (*GitLog[O], error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("oplog: open git repository: %w", err)
	}
	return NewGitLog[O](actor, repo), nil
}

// InitGitLog creates a fresh bare repository at path. Bare, because this
// repository is never checked out; it only ever holds the object graph
// commit/push/fetch/Next need.
func InitGitLog[O any](actor crdt.Actor, path string) (*GitLog[O], error) {
	repo, err := git.PlainInit(path, true)
	if err != nil {
		return nil, fmt.Errorf("oplog: init git repository: %w", err)
	}
	return NewGitLog[O](actor, repo), nil
}

func actorBranchName(actor crdt.Actor) plumbing.ReferenceName {
	return plumbing.ReferenceName("refs/heads/actor/" + actor.String())
}

func ackedBranchName(actor crdt.Actor) plumbing.ReferenceName {
	return plumbing.ReferenceName("refs/heads/acked/" + actor.String())
}

// Commit appends op as a new commit on this log's own actor branch, parented
// on that branch's current tip (or parentless, for the first commit).
func (l *GitLog[O]) Commit(op O) (*TaggedOp[O], error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("oplog: encode op: %w", err)
	}

	blobHash, err := l.writeBlob(payload)
	if err != nil {
		return nil, err
	}
	treeHash, err := l.writeTree(blobHash)
	if err != nil {
		return nil, err
	}

	branch := actorBranchName(l.actor)
	var parents []plumbing.Hash
	tip, err := l.ref(branch)
	if err != nil {
		return nil, err
	}
	if tip != nil {
		parents = []plumbing.Hash{tip.Hash()}
	}

	commitHash, err := l.writeCommit(treeHash, parents)
	if err != nil {
		return nil, err
	}
	if err := l.repo.Storer.SetReference(plumbing.NewHashReference(branch, commitHash)); err != nil {
		return nil, fmt.Errorf("oplog: update %s: %w", branch, err)
	}

	return &TaggedOp[O]{ID: commitHash, Actor: l.actor, Op: op}, nil
}

// Next walks the local actor branch first, then every remote-tracking
// actor branch, returning the oldest unacked op of the first branch that
// has one.
func (l *GitLog[O]) Next() (*TaggedOp[O], error) {
	unacked, err := l.ref(actorBranchName(l.actor))
	if err != nil {
		return nil, err
	}
	acked, err := l.ref(ackedBranchName(l.actor))
	if err != nil {
		return nil, err
	}
	if op, err := l.nextFromBranches(l.actor, unacked, acked); err != nil || op != nil {
		return op, err
	}

	iter, err := l.repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("oplog: iterate references: %w", err)
	}
	defer iter.Close()

	var found *TaggedOp[O]
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if found != nil {
			return nil
		}
		actor, ok := parseRemoteActorBranch(ref.Name().String())
		if !ok || actor == l.actor {
			return nil
		}
		tracking, err := l.ref(actorBranchName(actor))
		if err != nil {
			return err
		}
		op, err := l.nextFromBranches(actor, ref, tracking)
		if err != nil {
			return err
		}
		if op != nil {
			found = op
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// parseRemoteActorBranch extracts the actor id from a fetched tracking ref
// of the shape refs/remotes/<remote>/actor/<hex>.
func parseRemoteActorBranch(name string) (crdt.Actor, bool) {
	const prefix = "refs/remotes/"
	if !strings.HasPrefix(name, prefix) {
		return crdt.Actor{}, false
	}
	parts := strings.SplitN(name[len(prefix):], "/actor/", 2)
	if len(parts) != 2 {
		return crdt.Actor{}, false
	}
	b, err := hex.DecodeString(parts[1])
	if err != nil {
		return crdt.Actor{}, false
	}
	actor, err := crdt.ActorFromBytes(b)
	if err != nil {
		return crdt.Actor{}, false
	}
	return actor, true
}

func (l *GitLog[O]) nextFromBranches(actor crdt.Actor, unacked, acked *plumbing.Reference) (*TaggedOp[O], error) {
	switch {
	case unacked != nil && acked != nil:
		if unacked.Hash() == acked.Hash() {
			return nil, nil
		}
		commit, err := l.walkToChildOf(unacked.Hash(), acked.Hash())
		if err != nil {
			return nil, err
		}
		return l.taggedFromCommit(actor, commit)
	case unacked != nil && acked == nil:
		commit, err := l.walkToRoot(unacked.Hash())
		if err != nil {
			return nil, err
		}
		return l.taggedFromCommit(actor, commit)
	case unacked == nil && acked != nil:
		return nil, fmt.Errorf("oplog: acked branch exists for actor %s with no unacked branch", actor)
	default:
		return nil, nil
	}
}

// walkToChildOf walks the single-parent chain from tip back to the commit
// whose parent is target, i.e. the oldest commit not yet reachable from
// target: the next op this consumer hasn't acked.
func (l *GitLog[O]) walkToChildOf(tip, target plumbing.Hash) (*object.Commit, error) {
	curr := tip
	for {
		commit, err := object.GetCommit(l.repo.Storer, curr)
		if err != nil {
			return nil, fmt.Errorf("oplog: load commit %s: %w", curr, err)
		}
		if len(commit.ParentHashes) != 1 {
			return nil, fmt.Errorf("oplog: commit %s has %d parents, want 1", curr, len(commit.ParentHashes))
		}
		parent := commit.ParentHashes[0]
		if parent == target {
			return commit, nil
		}
		curr = parent
	}
}

func (l *GitLog[O]) walkToRoot(tip plumbing.Hash) (*object.Commit, error) {
	curr := tip
	for {
		commit, err := object.GetCommit(l.repo.Storer, curr)
		if err != nil {
			return nil, fmt.Errorf("oplog: load commit %s: %w", curr, err)
		}
		if len(commit.ParentHashes) == 0 {
			return commit, nil
		}
		if len(commit.ParentHashes) != 1 {
			return nil, fmt.Errorf("oplog: commit %s has %d parents, want at most 1", curr, len(commit.ParentHashes))
		}
		curr = commit.ParentHashes[0]
	}
}

func (l *GitLog[O]) taggedFromCommit(actor crdt.Actor, commit *object.Commit) (*TaggedOp[O], error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("oplog: commit %s tree: %w", commit.Hash, err)
	}
	file, err := tree.File("op")
	if err != nil {
		return nil, fmt.Errorf("oplog: commit %s has no op entry: %w", commit.Hash, err)
	}
	r, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("oplog: open op blob for commit %s: %w", commit.Hash, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("oplog: read op blob for commit %s: %w", commit.Hash, err)
	}
	var op O
	if err := json.Unmarshal(b, &op); err != nil {
		return nil, fmt.Errorf("oplog: decode op for commit %s: %w", commit.Hash, err)
	}
	return &TaggedOp[O]{ID: commit.Hash, Actor: actor, Op: op}, nil
}

// Ack advances the cursor branch for op.Actor (acked/<self> for this log's
// own actor, actor/<other> for every other actor) to op's commit. op must
// be exactly what Next currently returns.
func (l *GitLog[O]) Ack(op *TaggedOp[O]) error {
	next, err := l.Next()
	if err != nil {
		return err
	}
	if next == nil {
		return protocolErrorf("ack with nothing committed")
	}
	hash, ok := op.ID.(plumbing.Hash)
	if !ok || hash != next.ID.(plumbing.Hash) {
		return protocolErrorf("ack of %v does not match next op %v", op.ID, next.ID)
	}

	var branch plumbing.ReferenceName
	if op.Actor == l.actor {
		branch = ackedBranchName(l.actor)
	} else {
		branch = actorBranchName(op.Actor)
	}
	if err := l.repo.Storer.SetReference(plumbing.NewHashReference(branch, hash)); err != nil {
		return fmt.Errorf("oplog: update %s: %w", branch, err)
	}
	return nil
}

// Pull fetches every actor branch from remote into this repository's
// remote-tracking refs. It never touches a local branch directly: Next
// reads the tracking refs, and Ack is what promotes progress onto a local
// branch.
func (l *GitLog[O]) Pull(remote Remote) error {
	r, ok := remote.(*GitRemote)
	if !ok {
		return fmt.Errorf("oplog: GitLog.Pull: remote is %T, want *GitRemote", remote)
	}
	gitRemote, err := l.ensureRemote(r)
	if err != nil {
		return err
	}
	refspec := config.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", r.Name))
	err = gitRemote.Fetch(&git.FetchOptions{
		RemoteName: r.Name,
		Auth:       r.Auth,
		RefSpecs:   []config.RefSpec{refspec},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("oplog: fetch from %s: %w", r.Name, err)
	}
	return nil
}

// Push publishes every local branch (actor and acked) to remote.
func (l *GitLog[O]) Push(remote Remote) error {
	r, ok := remote.(*GitRemote)
	if !ok {
		return fmt.Errorf("oplog: GitLog.Push: remote is %T, want *GitRemote", remote)
	}
	gitRemote, err := l.ensureRemote(r)
	if err != nil {
		return err
	}
	err = gitRemote.Push(&git.PushOptions{
		RemoteName: r.Name,
		Auth:       r.Auth,
		RefSpecs:   []config.RefSpec{"refs/heads/*:refs/heads/*"},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("oplog: push to %s: %w", r.Name, err)
	}
	return nil
}

// Sync pulls then pushes.
func (l *GitLog[O]) Sync(remote Remote) error {
	if err := l.Pull(remote); err != nil {
		return err
	}
	return l.Push(remote)
}

func (l *GitLog[O]) ensureRemote(r *GitRemote) (*git.Remote, error) {
	gitRemote, err := l.repo.Remote(r.Name)
	if err == nil {
		return gitRemote, nil
	}
	if !errors.Is(err, git.ErrRemoteNotFound) {
		return nil, fmt.Errorf("oplog: find remote %s: %w", r.Name, err)
	}
	gitRemote, err = l.repo.CreateRemote(&config.RemoteConfig{Name: r.Name, URLs: []string{r.URL}})
	if err != nil {
		return nil, fmt.Errorf("oplog: add remote %s: %w", r.Name, err)
	}
	return gitRemote, nil
}

func (l *GitLog[O]) ref(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	ref, err := l.repo.Reference(name, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("oplog: resolve %s: %w", name, err)
	}
	return ref, nil
}

func (l *GitLog[O]) writeBlob(content []byte) (plumbing.Hash, error) {
	obj := l.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("oplog: open blob writer: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, fmt.Errorf("oplog: write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("oplog: close blob writer: %w", err)
	}
	return l.repo.Storer.SetEncodedObject(obj)
}

func (l *GitLog[O]) writeTree(opBlob plumbing.Hash) (plumbing.Hash, error) {
	tree := &object.Tree{Entries: []object.TreeEntry{
		{Name: "op", Mode: filemode.Regular, Hash: opBlob},
	}}
	obj := l.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("oplog: encode tree: %w", err)
	}
	return l.repo.Storer.SetEncodedObject(obj)
}

func (l *GitLog[O]) writeCommit(tree plumbing.Hash, parents []plumbing.Hash) (plumbing.Hash, error) {
	sig := object.Signature{Name: "burrow", Email: "burrow@localhost", When: time.Now()}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      "op",
		TreeHash:     tree,
		ParentHashes: parents,
	}
	obj := l.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("oplog: encode commit: %w", err)
	}
	return l.repo.Storer.SetEncodedObject(obj)
}
