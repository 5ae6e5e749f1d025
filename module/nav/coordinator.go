package nav

import (
	"context"
	"time"

	"github.com/convoylab/convoy/logger"
	"github.com/convoylab/convoy/module/party"
	"github.com/convoylab/convoy/service/fanout"
	"github.com/convoylab/convoy/service/storage"
	"github.com/convoylab/convoy/tools/errs"

	"go.uber.org/zap"
)

// Coordinator holds the single authoritative navigation state per party
// and gates writes to the party leader. Consistency model is
// leader-authoritative last-writer-wins by version: followers discard
// anything older than what they already applied (see Applier), so the
// fan-out layer may reorder or duplicate freely.
//
// There is no leader hand-off. If the leader disconnects, the last
// published route stays frozen until the leader returns or clears it.
type Coordinator struct {
	parties  party.Service
	repo     Repo
	versions storage.VersionSource
	bus      fanout.Bus
	clock    func() time.Time
}

func NewCoordinator(parties party.Service, repo Repo, versions storage.VersionSource, bus fanout.Bus) *Coordinator {
	return &Coordinator{
		parties:  parties,
		repo:     repo,
		versions: versions,
		bus:      bus,
		clock:    time.Now,
	}
}

// SetClock overrides the timestamp source (tests).
func (c *Coordinator) SetClock(clock func() time.Time) { c.clock = clock }

// SetDestination replaces the party's navigation state wholesale.
// Partial patches are deliberately not supported: a full replace is the
// only write shape, which removes merge-order ambiguity between two
// leader devices racing each other.
func (c *Coordinator) SetDestination(ctx context.Context, partyID, requesterID string, req SetRequest) (*State, error) {
	if err := c.requireLeader(ctx, partyID, requesterID); err != nil {
		return nil, err
	}

	version, err := c.versions.Next(ctx, partyID)
	if err != nil {
		return nil, err
	}

	st := &State{
		PartyID:         partyID,
		CreatedBy:       requesterID,
		DestinationName: req.DestinationName,
		Destination:     req.Destination,
		Steps:           req.Steps,
		TotalDistanceM:  req.TotalDistanceM,
		TotalDurationS:  req.TotalDurationS,
		Active:          true,
		Version:         version,
		UpdatedAt:       c.clock(),
	}

	if err := c.repo.Upsert(ctx, st); err != nil {
		return nil, err
	}
	if err := c.publish(ctx, st); err != nil {
		return nil, err
	}
	logger.Info("navigation set",
		zap.String("party", partyID),
		zap.String("leader", requesterID),
		zap.Int64("version", version),
		zap.Int("steps", len(st.Steps)))
	return st, nil
}

// Clear ends guided mode. The cleared state still carries a version so
// followers can order it against a concurrent SetDestination.
func (c *Coordinator) Clear(ctx context.Context, partyID, requesterID string) (*State, error) {
	if err := c.requireLeader(ctx, partyID, requesterID); err != nil {
		return nil, err
	}

	version, err := c.versions.Next(ctx, partyID)
	if err != nil {
		return nil, err
	}

	st := &State{
		PartyID:   partyID,
		CreatedBy: requesterID,
		Active:    false,
		Version:   version,
		UpdatedAt: c.clock(),
	}

	if err := c.repo.Upsert(ctx, st); err != nil {
		return nil, err
	}
	if err := c.publish(ctx, st); err != nil {
		return nil, err
	}
	logger.Info("navigation cleared",
		zap.String("party", partyID),
		zap.Int64("version", version))
	return st, nil
}

// Active returns the current navigation state, or nil when the party is
// not in guided mode. Used to hydrate a newly joined connection.
func (c *Coordinator) Active(ctx context.Context, partyID string) (*State, error) {
	st, err := c.repo.Get(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if st == nil || !st.Active {
		return nil, nil
	}
	return st, nil
}

func (c *Coordinator) requireLeader(ctx context.Context, partyID, requesterID string) error {
	p, err := c.parties.Get(ctx, partyID)
	if err != nil {
		return err
	}
	if p.LeaderID != requesterID {
		return errs.ErrNotLeader.WrapMsg("user", requesterID, "party", partyID)
	}
	return nil
}

func (c *Coordinator) publish(ctx context.Context, st *State) error {
	ev, err := fanout.NewEvent(fanout.EvNavigationState, st.PartyID, st.CreatedBy, st)
	if err != nil {
		return err
	}
	raw, err := ev.Encode()
	if err != nil {
		return err
	}
	return c.bus.Publish(ctx, fanout.PartyTopic(st.PartyID), raw)
}
