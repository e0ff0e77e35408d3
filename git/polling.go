package git

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// PollBranch reports the tip of branch once immediately and again every time
// it changes, checking on each tick. An empty hash is reported while the
// branch does not exist.
func PollBranch(
	ctx context.Context,
	remote RemoteGit,
	branch string,
	callback func(hash CommitSHA),
	ticker <-chan time.Time,
) error {
	lastHash, err := currentHash(ctx, remote, branch)
	if err != nil {
		return err
	}
	callback(lastHash)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticker:
			if !ok {
				return nil
			}

			hash, err := currentHash(ctx, remote, branch)
			if err != nil {
				log.Error("Error getting current hash", "branch", branch, "repo", remote.Owner()+"/"+remote.Name(), "err", err)
				continue
			}

			if hash != lastHash {
				log.Info("Branch hash changed", "repo", remote.Owner()+"/"+remote.Name(), "branch", branch, "lastHash", lastHash, "currentHash", hash)
				lastHash = hash
				callback(hash)
			}
		}
	}
}

func currentHash(ctx context.Context, remote RemoteGit, branch string) (CommitSHA, error) {
	ref, err := remote.GetRef(ctx, branch)
	if err != nil {
		if IsMissingRef(err) {
			return "", nil
		}
		return "", err
	}
	return ref.Hash, nil
}
