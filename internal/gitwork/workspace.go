package gitwork

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pipeline/internal/errs"
	"pipeline/internal/filelock"
)

// SymlinkDir names a directory that should be relatively symlinked from
// inside a fresh working copy back to the project root, instead of
// copied, so large pre-populated dependency trees do not need to be
// duplicated per track.
type SymlinkDir struct {
	Name string // relative to both the project root and the working copy
}

// CopyFile names a file copied (not linked) into each fresh working copy.
type CopyFile struct {
	Name string
}

// Config configures one Manager instance.
type Config struct {
	ProjectRoot   string
	WorktreesDir  string // relative to ProjectRoot
	BaseBranch    string
	Remote        string // usually "origin"; empty disables push/pull
	PreserveFiles []string // paths relative to ProjectRoot, preserved across VCS ops
	SymlinkDirs   []SymlinkDir
	CopyFiles     []CopyFile
	SetupScript   string // auto-generated script name, empty disables
}

// Manager is C4. gitMutex serializes Init, PrepareBranch, CleanupWorktree,
// UpdateFeatureBranch, MergeLocally, PushBaseBranch and RevertMerge;
// CommitAllIfDirty, GetBranchStatus and Snapshot run without it. It is distinct
// from the Orchestrator's verification mutex, which spans the whole
// merge-and-verify window rather than a single git call.
type Manager struct {
	cfg      Config
	cli      *client
	gitMutex *filelock.TrackMutex
}

// New builds a Manager for the given configuration.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg, cli: &client{}, gitMutex: filelock.NewTrackMutex()}
}

func (m *Manager) worktreePath(track string) string {
	return filepath.Join(m.cfg.ProjectRoot, m.cfg.WorktreesDir, track)
}

func (m *Manager) preservedPaths() []string {
	paths := make([]string, len(m.cfg.PreserveFiles))
	for i, p := range m.cfg.PreserveFiles {
		paths[i] = filepath.Join(m.cfg.ProjectRoot, p)
	}
	return paths
}

// withPreserved snapshots every preserved file, runs fn, then restores
// the snapshotted bytes regardless of whether fn succeeded. This is the
// mechanism required before any version-control operation that could
// overwrite a coordination file such as the feature list.
func (m *Manager) withPreserved(fn func() error) error {
	type snapshot struct {
		path    string
		content []byte
		existed bool
	}
	var snaps []snapshot
	for _, path := range m.preservedPaths() {
		b, err := os.ReadFile(path)
		if err != nil {
			snaps = append(snaps, snapshot{path: path, existed: false})
			continue
		}
		snaps = append(snaps, snapshot{path: path, content: b, existed: true})
	}

	runErr := fn()

	for _, s := range snaps {
		if !s.existed {
			continue
		}
		if err := os.WriteFile(s.path, s.content, 0644); err != nil && runErr == nil {
			runErr = fmt.Errorf("restore preserved file %s: %w", s.path, err)
		}
	}
	return runErr
}

// Init prunes stale working copies, stashes leftover modifications,
// ensures the base branch exists, checks it out, and pulls if a remote
// tracking branch exists. Preserved files are restored last.
func (m *Manager) Init() error {
	_ = m.gitMutex.Lock(context.Background())
	defer m.gitMutex.Unlock()

	return m.withPreserved(func() error {
		_ = m.cli.worktreePrune(m.cfg.ProjectRoot)

		if dirty, _ := m.cli.isDirty(m.cfg.ProjectRoot); dirty {
			_ = m.cli.stash(m.cfg.ProjectRoot)
		}

		if !m.cli.branchExists(m.cfg.ProjectRoot, m.cfg.BaseBranch) {
			if err := m.cli.checkoutNewBranch(m.cfg.ProjectRoot, m.cfg.BaseBranch, ""); err != nil {
				return &errs.GitError{Op: "init:create-base", Branch: m.cfg.BaseBranch, Err: err}
			}
		} else if err := m.cli.checkout(m.cfg.ProjectRoot, m.cfg.BaseBranch); err != nil {
			return &errs.GitError{Op: "init:checkout-base", Branch: m.cfg.BaseBranch, Err: err}
		}

		if m.cfg.Remote != "" && m.cli.remoteBranchExists(m.cfg.ProjectRoot, m.cfg.Remote, m.cfg.BaseBranch) {
			_ = m.cli.pull(m.cfg.ProjectRoot, m.cfg.Remote, m.cfg.BaseBranch)
		}
		return nil
	})
}

// PrepareBranch creates or reuses a feature branch and a fresh working
// copy for track, returning the branch name and working-copy path.
func (m *Manager) PrepareBranch(track string, featureID int, featureName string, isRetry bool) (branch, worktreePath string, err error) {
	_ = m.gitMutex.Lock(context.Background())
	defer m.gitMutex.Unlock()

	branch = featureBranchName(featureID, featureName)
	worktreePath = m.worktreePath(track)

	if _, statErr := os.Stat(worktreePath); statErr == nil {
		if rmErr := m.cli.worktreeRemove(m.cfg.ProjectRoot, worktreePath); rmErr != nil {
			os.RemoveAll(worktreePath)
		}
	}

	if m.cli.branchExists(m.cfg.ProjectRoot, branch) {
		if err := m.cli.worktreeAdd(m.cfg.ProjectRoot, worktreePath, branch, false, ""); err != nil {
			return "", "", &errs.GitError{Op: "prepare:add-existing", Branch: branch, Err: err}
		}
	} else {
		if err := m.cli.worktreeAdd(m.cfg.ProjectRoot, worktreePath, branch, true, m.cfg.BaseBranch); err != nil {
			return "", "", &errs.GitError{Op: "prepare:add-new", Branch: branch, Err: err}
		}
	}

	if err := m.postSetup(worktreePath, track); err != nil {
		return "", "", &errs.GitError{Op: "prepare:post-setup", Branch: branch, Err: err}
	}

	return branch, worktreePath, nil
}

func (m *Manager) postSetup(worktreePath, track string) error {
	for _, d := range m.cfg.SymlinkDirs {
		src := filepath.Join(m.cfg.ProjectRoot, d.Name)
		dst := filepath.Join(worktreePath, d.Name)
		rel, err := filepath.Rel(filepath.Dir(dst), src)
		if err != nil {
			return err
		}
		os.Remove(dst)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := os.Symlink(rel, dst); err != nil && !os.IsExist(err) {
			return fmt.Errorf("symlink %s: %w", d.Name, err)
		}
	}

	for _, f := range m.cfg.CopyFiles {
		src := filepath.Join(m.cfg.ProjectRoot, f.Name)
		dst := filepath.Join(worktreePath, f.Name)
		content, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, content, 0644); err != nil {
			return fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}

	metaDir := filepath.Join(m.cfg.ProjectRoot, m.cfg.WorktreesDir, track, ".git")
	if _, err := os.Stat(metaDir); err == nil {
		os.Chmod(metaDir, 0755)
		os.Remove(filepath.Join(metaDir, "index.lock"))
	}

	if m.cfg.SetupScript != "" {
		script := filepath.Join(worktreePath, m.cfg.SetupScript)
		if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
			return fmt.Errorf("write setup script: %w", err)
		}
		excludePath := filepath.Join(worktreePath, ".git", "info", "exclude")
		if f, err := os.OpenFile(excludePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			fmt.Fprintf(f, "%s\n", m.cfg.SetupScript)
			f.Close()
		}
	}
	return nil
}

// CleanupWorktree removes the working copy for a track and prunes.
func (m *Manager) CleanupWorktree(track string) error {
	_ = m.gitMutex.Lock(context.Background())
	defer m.gitMutex.Unlock()

	worktreePath := m.worktreePath(track)
	if err := m.cli.worktreeRemove(m.cfg.ProjectRoot, worktreePath); err != nil {
		os.RemoveAll(worktreePath)
	}
	return m.cli.worktreePrune(m.cfg.ProjectRoot)
}

// CommitAllIfDirty commits everything (including untracked files) in
// worktreePath if the tree is dirty, returning whether a commit happened.
func (m *Manager) CommitAllIfDirty(worktreePath, message string) (bool, error) {
	dirty, err := m.cli.isDirty(worktreePath)
	if err != nil {
		return false, &errs.GitError{Op: "status", Err: err}
	}
	if !dirty {
		return false, nil
	}
	if err := m.cli.commitAll(worktreePath, message); err != nil {
		return false, &errs.GitError{Op: "commit", Err: err}
	}
	return true, nil
}

// BranchStatus is the result of GetBranchStatus.
type BranchStatus struct {
	AheadCount int
	Clean      bool
}

// GetBranchStatus reports how far branch is ahead of the base branch and
// whether worktreePath's tree is clean.
func (m *Manager) GetBranchStatus(branch, worktreePath string) (BranchStatus, error) {
	ahead, err := m.cli.revCount(worktreePath, m.cfg.BaseBranch+".."+branch)
	if err != nil {
		return BranchStatus{}, &errs.GitError{Op: "rev-list", Branch: branch, Err: err}
	}
	dirty, err := m.cli.isDirty(worktreePath)
	if err != nil {
		return BranchStatus{}, &errs.GitError{Op: "status", Branch: branch, Err: err}
	}
	return BranchStatus{AheadCount: ahead, Clean: !dirty}, nil
}

// Snapshot returns a short, best-effort repository-state summary for
// worktreePath: porcelain status, a shortstat diff summary, and the last
// commit's one-line log entry. Any individual command failing just leaves
// that field empty rather than failing the whole snapshot, since callers
// use this only to enrich a prompt, not to make a control-flow decision.
func (m *Manager) Snapshot(worktreePath string) (porcelain, diffSummary, lastCommit string) {
	porcelain, _ = m.cli.porcelainStatus(worktreePath)
	diffSummary, _ = m.cli.diffStat(worktreePath)
	lastCommit, _ = m.cli.lastCommitSummary(worktreePath)
	return porcelain, diffSummary, lastCommit
}

// UpdateFeatureBranch merges the latest base branch into the feature
// branch inside its working copy. On conflict it aborts the merge rather
// than leaving the working copy mid-merge.
func (m *Manager) UpdateFeatureBranch(worktreePath string) error {
	_ = m.gitMutex.Lock(context.Background())
	defer m.gitMutex.Unlock()

	if _, _, err := m.cli.merge(worktreePath, m.cfg.BaseBranch, false); err != nil {
		_ = m.cli.abortMerge(worktreePath)
		return &errs.GitError{Op: "update-feature-branch", Err: err}
	}
	return nil
}

// MergeLocally checks out the base branch in the main repository, pulls
// if possible, merges the feature branch in, and returns the pre-merge
// commit so a caller can choose to RevertMerge later.
func (m *Manager) MergeLocally(branch string) (preMergeCommit string, err error) {
	_ = m.gitMutex.Lock(context.Background())
	defer m.gitMutex.Unlock()

	err = m.withPreserved(func() error {
		if err := m.cli.checkout(m.cfg.ProjectRoot, m.cfg.BaseBranch); err != nil {
			return &errs.GitError{Op: "merge:checkout-base", Branch: branch, Fatal: true, Err: err}
		}
		if m.cfg.Remote != "" && m.cli.remoteBranchExists(m.cfg.ProjectRoot, m.cfg.Remote, m.cfg.BaseBranch) {
			_ = m.cli.pull(m.cfg.ProjectRoot, m.cfg.Remote, m.cfg.BaseBranch)
		}

		commit, cErr := m.cli.currentCommit(m.cfg.ProjectRoot)
		if cErr != nil {
			return &errs.GitError{Op: "merge:head", Branch: branch, Fatal: true, Err: cErr}
		}
		preMergeCommit = commit

		if _, _, mErr := m.cli.merge(m.cfg.ProjectRoot, branch, true); mErr != nil {
			_ = m.cli.abortMerge(m.cfg.ProjectRoot)
			return &errs.GitError{Op: "merge", Branch: branch, Fatal: true, Err: mErr}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return preMergeCommit, nil
}

// PushBaseBranch pushes the base branch to the configured remote.
func (m *Manager) PushBaseBranch() error {
	_ = m.gitMutex.Lock(context.Background())
	defer m.gitMutex.Unlock()

	if m.cfg.Remote == "" {
		return nil
	}
	if err := m.cli.push(m.cfg.ProjectRoot, m.cfg.Remote, m.cfg.BaseBranch); err != nil {
		return &errs.GitError{Op: "push", Branch: m.cfg.BaseBranch, Fatal: true, Err: err}
	}
	return nil
}

// RevertMerge resets the base branch to preMergeCommit. By design the
// core Orchestrator never calls this after a failed verification — the
// merged code is left on the base branch deliberately — but a caller that
// chooses to revert has this available.
func (m *Manager) RevertMerge(preMergeCommit string) error {
	_ = m.gitMutex.Lock(context.Background())
	defer m.gitMutex.Unlock()

	return m.withPreserved(func() error {
		if err := m.cli.checkout(m.cfg.ProjectRoot, m.cfg.BaseBranch); err != nil {
			return &errs.GitError{Op: "revert:checkout-base", Err: err}
		}
		if err := m.cli.resetHard(m.cfg.ProjectRoot, preMergeCommit); err != nil {
			return &errs.GitError{Op: "revert:reset-hard", Err: err}
		}
		return nil
	})
}
