// Package consensus collects weighted votes from a panel of voters under a
// deadline and reduces them to a single decision.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoQuorum is returned when the votes cannot decide the question.
	ErrNoQuorum = errors.New("no quorum")
	// ErrInvalidRequest is returned for malformed Vote calls.
	ErrInvalidRequest = errors.New("invalid consensus request")
)

// Decision is a single voter's position.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
	Abstain Decision = "abstain"
)

// Status summarises a Result.
type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusNoQuorum Status = "no_quorum"
)

// Vote is one voter's answer.
type Vote struct {
	Voter      string        `json:"voter"`
	Decision   Decision      `json:"decision"`
	Confidence float64       `json:"confidence"`
	Rationale  string        `json:"rationale,omitempty"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// Result is the aggregated outcome of a vote.
type Result struct {
	Question     string        `json:"question"`
	Status       Status        `json:"status"`
	Approved     bool          `json:"approved"`
	ApprovalRate float64       `json:"approval_rate"`
	Threshold    float64       `json:"threshold"`
	Approvals    int           `json:"approvals"`
	Rejections   int           `json:"rejections"`
	Abstentions  int           `json:"abstentions"`
	Errors       int           `json:"errors"`
	Votes        []Vote        `json:"votes"`
	Duration     time.Duration `json:"duration"`
}

// Voter answers yes/no questions.
type Voter interface {
	Name() string
	Vote(ctx context.Context, question string) (Vote, error)
}

// VoterFunc adapts a function to the Voter interface.
type VoterFunc struct {
	ID string
	Fn func(ctx context.Context, question string) (Vote, error)
}

// Name implements Voter.
func (v VoterFunc) Name() string { return v.ID }

// Vote implements Voter.
func (v VoterFunc) Vote(ctx context.Context, question string) (Vote, error) {
	return v.Fn(ctx, question)
}

// Aggregator runs votes.
type Aggregator struct {
	logger      *zap.Logger
	minQuorum   int
	maxParallel int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMinQuorum sets how many approve/reject votes a decision needs.
func WithMinQuorum(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.minQuorum = n
		}
	}
}

// WithMaxParallel bounds concurrent voter calls. Zero means unbounded.
func WithMaxParallel(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.maxParallel = n
		}
	}
}

// New creates an Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		logger:    zap.NewNop(),
		minQuorum: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Vote asks every voter concurrently and aggregates the answers. Voters that
// miss the deadline or fail are counted as abstentions. The approval rate is
// approvals over every vote that did not fail, deliberate abstains included,
// and the question is approved when the rate reaches threshold.
func (a *Aggregator) Vote(ctx context.Context, question string, voters []Voter, deadline time.Duration, threshold float64) (*Result, error) {
	if err := validateRequest(voters, deadline, threshold); err != nil {
		return nil, err
	}

	start := time.Now()
	voteCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	votes := make([]Vote, len(voters))
	g := new(errgroup.Group)
	if a.maxParallel > 0 {
		g.SetLimit(a.maxParallel)
	}
	for i, voter := range voters {
		g.Go(func() error {
			votes[i] = a.cast(voteCtx, voter, question)
			return nil
		})
	}
	_ = g.Wait()

	res := tally(question, votes, threshold, a.minQuorum)
	res.Duration = time.Since(start)

	a.logger.Info("vote finished",
		zap.String("status", string(res.Status)),
		zap.Float64("approval_rate", res.ApprovalRate),
		zap.Int("approvals", res.Approvals),
		zap.Int("rejections", res.Rejections),
		zap.Int("abstentions", res.Abstentions),
		zap.Duration("duration", res.Duration))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if res.Status == StatusNoQuorum {
		return res, fmt.Errorf("%w: %d approvals, %d rejections, %d abstentions",
			ErrNoQuorum, res.Approvals, res.Rejections, res.Abstentions)
	}
	return res, nil
}

type castResult struct {
	vote Vote
	err  error
}

// cast runs one voter and never outlives ctx.
func (a *Aggregator) cast(ctx context.Context, voter Voter, question string) Vote {
	name := voter.Name()
	start := time.Now()

	done := make(chan castResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- castResult{err: fmt.Errorf("voter panicked: %v", p)}
			}
		}()
		v, err := voter.Vote(ctx, question)
		done <- castResult{vote: v, err: err}
	}()

	var res castResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = castResult{err: ctx.Err()}
	}

	latency := time.Since(start)
	if res.err != nil {
		a.logger.Warn("voter abstained",
			zap.String("voter", name),
			zap.Duration("latency", latency),
			zap.Error(res.err))
		return Vote{Voter: name, Decision: Abstain, Error: res.err.Error(), Latency: latency}
	}

	v := res.vote
	v.Voter = name
	v.Latency = latency
	v.Decision = normalizeDecision(v.Decision)
	v.Confidence = clampConfidence(v.Confidence)
	return v
}

func tally(question string, votes []Vote, threshold float64, minQuorum int) *Result {
	res := &Result{Question: question, Threshold: threshold, Votes: votes}
	voluntary := 0
	for _, v := range votes {
		switch v.Decision {
		case Approve:
			res.Approvals++
		case Reject:
			res.Rejections++
		default:
			res.Abstentions++
			if v.Error == "" {
				voluntary++
			}
		}
		if v.Error != "" {
			res.Errors++
		}
	}

	// Every vote that did not fail counts toward the rate, including a
	// deliberate abstain.
	valid := res.Approvals + res.Rejections + voluntary
	if valid > 0 {
		res.ApprovalRate = float64(res.Approvals) / float64(valid)
	}
	decided := res.Approvals + res.Rejections
	if decided == 0 || valid < minQuorum || res.Approvals == res.Rejections {
		res.Status = StatusNoQuorum
		return res
	}

	res.Approved = res.ApprovalRate >= threshold
	res.Status = StatusRejected
	if res.Approved {
		res.Status = StatusApproved
	}
	return res
}

func validateRequest(voters []Voter, deadline time.Duration, threshold float64) error {
	if len(voters) == 0 {
		return fmt.Errorf("%w: no voters", ErrInvalidRequest)
	}
	for i, v := range voters {
		if v == nil {
			return fmt.Errorf("%w: voter %d is nil", ErrInvalidRequest, i)
		}
	}
	if deadline <= 0 {
		return fmt.Errorf("%w: deadline must be positive", ErrInvalidRequest)
	}
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		return fmt.Errorf("%w: threshold %v outside (0,1]", ErrInvalidRequest, threshold)
	}
	return nil
}

func normalizeDecision(d Decision) Decision {
	switch strings.ToLower(strings.TrimSpace(string(d))) {
	case "approve", "approved", "yes":
		return Approve
	case "reject", "rejected", "no":
		return Reject
	default:
		return Abstain
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
