package consensus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/helix-collective/helix/pkg/adapter"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixed(name string, d Decision, confidence float64) Voter {
	return VoterFunc{ID: name, Fn: func(context.Context, string) (Vote, error) {
		return Vote{Decision: d, Confidence: confidence}, nil
	}}
}

func panel(decisions ...Decision) []Voter {
	voters := make([]Voter, len(decisions))
	for i, d := range decisions {
		voters[i] = fixed(fmt.Sprintf("v%d", i), d, 0.9)
	}
	return voters
}

func TestVoteThreshold(t *testing.T) {
	agg := New()
	voters := panel(Approve, Approve, Approve, Reject)

	res, err := agg.Vote(context.Background(), "ship it?", voters, time.Second, 0.75)
	if err != nil {
		t.Fatalf("Vote error: %v", err)
	}
	if !res.Approved || res.ApprovalRate != 0.75 || res.Status != StatusApproved {
		t.Fatalf("unexpected result at 0.75: %+v", res)
	}

	res, err = agg.Vote(context.Background(), "ship it?", voters, time.Second, 0.80)
	if err != nil {
		t.Fatalf("Vote error: %v", err)
	}
	if res.Approved || res.Status != StatusRejected {
		t.Fatalf("unexpected result at 0.80: %+v", res)
	}
	if res.Approvals != 3 || res.Rejections != 1 || res.Abstentions != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}
}

func TestVoteSlowVoterAbstains(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	stuck := VoterFunc{ID: "stuck", Fn: func(context.Context, string) (Vote, error) {
		<-release
		return Vote{Decision: Reject, Confidence: 1}, nil
	}}
	polite := VoterFunc{ID: "polite", Fn: func(ctx context.Context, _ string) (Vote, error) {
		<-ctx.Done()
		return Vote{}, ctx.Err()
	}}
	voters := []Voter{fixed("fast", Approve, 0.7), stuck, polite}

	deadline := 50 * time.Millisecond
	start := time.Now()
	res, err := New().Vote(context.Background(), "q", voters, deadline, 0.5)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Vote error: %v", err)
	}
	if elapsed > deadline+500*time.Millisecond {
		t.Fatalf("vote took %v, deadline was %v", elapsed, deadline)
	}
	if !res.Approved || res.Abstentions != 2 || res.Errors != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, v := range res.Votes[1:] {
		if v.Decision != Abstain || v.Confidence != 0 || v.Error == "" {
			t.Fatalf("late voter should abstain with zero confidence, got %+v", v)
		}
	}
}

func TestVoteCountsDeliberateAbstain(t *testing.T) {
	tests := []struct {
		name      string
		decisions []Decision
		threshold float64
		rate      float64
		approved  bool
	}{
		{"abstain lowers rate below threshold", []Decision{Approve, Approve, Approve, Abstain}, 0.8, 0.75, false},
		{"abstain still meets threshold", []Decision{Approve, Approve, Approve, Abstain}, 0.75, 0.75, true},
		{"abstain with reject", []Decision{Approve, Approve, Reject, Abstain}, 0.5, 0.5, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := New().Vote(context.Background(), "q", panel(tc.decisions...), time.Second, tc.threshold)
			if err != nil {
				t.Fatalf("Vote error: %v", err)
			}
			if res.ApprovalRate != tc.rate || res.Approved != tc.approved || res.Abstentions != 1 || res.Errors != 0 {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestVoteNoQuorum(t *testing.T) {
	tests := []struct {
		name      string
		decisions []Decision
		quorum    int
	}{
		{"tie", []Decision{Approve, Reject}, 1},
		{"all abstain", []Decision{Abstain, Abstain, Abstain}, 1},
		{"below quorum", []Decision{Approve, Approve, Abstain}, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := New(WithMinQuorum(tc.quorum)).Vote(context.Background(), "q", panel(tc.decisions...), time.Second, 0.5)
			if !errors.Is(err, ErrNoQuorum) {
				t.Fatalf("expected ErrNoQuorum, got %v", err)
			}
			if res == nil || res.Status != StatusNoQuorum || res.Approved {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestVoteErrorsAbstain(t *testing.T) {
	broken := VoterFunc{ID: "broken", Fn: func(context.Context, string) (Vote, error) {
		return Vote{}, errors.New("rate limited")
	}}
	boom := VoterFunc{ID: "boom", Fn: func(context.Context, string) (Vote, error) {
		panic("voter crashed")
	}}

	res, err := New().Vote(context.Background(), "q", []Voter{broken, boom, fixed("ok", Reject, 0.4)}, time.Second, 0.5)
	if err != nil {
		t.Fatalf("Vote error: %v", err)
	}
	if res.Approved || res.Rejections != 1 || res.Abstentions != 2 || res.Errors != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Votes[0].Error != "rate limited" {
		t.Fatalf("error not recorded: %+v", res.Votes[0])
	}
}

func TestVoteNormalizesBallots(t *testing.T) {
	voters := []Voter{
		fixed("a", "APPROVE", 1.7),
		fixed("b", "maybe", 0.5),
		fixed("c", Reject, -3),
		fixed("d", "yes", 0.6),
	}

	res, err := New().Vote(context.Background(), "q", voters, time.Second, 0.5)
	if err != nil {
		t.Fatalf("Vote error: %v", err)
	}

	type ballot struct {
		Voter      string
		Decision   Decision
		Confidence float64
	}
	var got []ballot
	for _, v := range res.Votes {
		got = append(got, ballot{v.Voter, v.Decision, v.Confidence})
	}
	want := []ballot{
		{"a", Approve, 1},
		{"b", Abstain, 0.5},
		{"c", Reject, 0},
		{"d", Approve, 0.6},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ballots mismatch (-want +got):\n%s", diff)
	}
}

func TestVoteKeepsVoterOrder(t *testing.T) {
	var voters []Voter
	for i := 0; i < 5; i++ {
		delay := time.Duration(5-i) * 5 * time.Millisecond
		voters = append(voters, VoterFunc{ID: fmt.Sprintf("v%d", i), Fn: func(ctx context.Context, _ string) (Vote, error) {
			select {
			case <-time.After(delay):
				return Vote{Decision: Approve, Confidence: 1}, nil
			case <-ctx.Done():
				return Vote{}, ctx.Err()
			}
		}})
	}

	for _, parallel := range []int{0, 2} {
		res, err := New(WithMaxParallel(parallel)).Vote(context.Background(), "q", voters, time.Second, 1)
		if err != nil {
			t.Fatalf("Vote error (parallel=%d): %v", parallel, err)
		}
		for i, v := range res.Votes {
			if v.Voter != fmt.Sprintf("v%d", i) {
				t.Fatalf("vote %d from %s (parallel=%d)", i, v.Voter, parallel)
			}
		}
	}
}

func TestVoteInvalidRequest(t *testing.T) {
	ok := panel(Approve)
	tests := []struct {
		name      string
		voters    []Voter
		deadline  time.Duration
		threshold float64
	}{
		{"no voters", nil, time.Second, 0.5},
		{"nil voter", []Voter{nil}, time.Second, 0.5},
		{"zero deadline", ok, 0, 0.5},
		{"zero threshold", ok, time.Second, 0},
		{"threshold above one", ok, time.Second, 1.1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New().Vote(context.Background(), "q", tc.voters, tc.deadline, tc.threshold)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestVoteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New().Vote(ctx, "q", panel(Approve), time.Second, 0.5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res == nil || len(res.Votes) != 1 {
		t.Fatalf("expected partial result, got %+v", res)
	}
}

func TestAdapterVoter(t *testing.T) {
	question := "Deploy the new router?"
	prompt := BallotPrompt(question)

	tests := []struct {
		name     string
		reply    string
		decision Decision
		wantErr  bool
	}{
		{"plain json", `{"decision":"approve","confidence":0.8,"rationale":"tests pass"}`, Approve, false},
		{"fenced json", "```json\n{\"decision\":\"reject\",\"confidence\":0.6}\n```", Reject, false},
		{"prose around json", `Sure. {"decision":"abstain","confidence":0.1} Thanks.`, Abstain, false},
		{"trailing prose", `{"decision":"approve","confidence":0.9} Hope this helps!`, Approve, false},
		{"missing decision", `{"confidence":0.5}`, "", true},
		{"not json", "I approve", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := adapter.NewMockAdapterWithResponses("mock", map[string]string{prompt: tc.reply}, "")
			v := AdapterVoter{ID: "claude", Adapter: mock, Model: "mock-1"}

			vote, err := v.Vote(context.Background(), question)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", vote)
				}
				return
			}
			if err != nil {
				t.Fatalf("Vote error: %v", err)
			}
			if vote.Decision != tc.decision {
				t.Fatalf("decision = %s, want %s", vote.Decision, tc.decision)
			}
		})
	}
}

func TestAdapterVoterInPanel(t *testing.T) {
	question := "Merge?"
	prompt := BallotPrompt(question)
	yes := adapter.NewMockAdapterWithResponses("a", map[string]string{prompt: `{"decision":"approve","confidence":0.9}`}, "")
	no := adapter.NewMockAdapterWithResponses("b", map[string]string{prompt: `{"decision":"reject","confidence":0.9}`}, "")
	down := adapter.NewMockAdapter()
	down.Err = errors.New("503")

	voters := []Voter{
		AdapterVoter{Adapter: yes},
		AdapterVoter{Adapter: yes, ID: "a2"},
		AdapterVoter{Adapter: no},
		AdapterVoter{Adapter: down},
	}
	res, err := New().Vote(context.Background(), question, voters, time.Second, 0.6)
	if err != nil {
		t.Fatalf("Vote error: %v", err)
	}
	if !res.Approved || res.Abstentions != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := []string{res.Votes[0].Voter, res.Votes[1].Voter, res.Votes[2].Voter, res.Votes[3].Voter}; !cmp.Equal(got, []string{"a", "a2", "b", "mock"}) {
		t.Fatalf("voter names = %v", got)
	}
}
