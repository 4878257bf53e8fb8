package warehouse

import (
	"context"
	"strings"
	"sync"
)

// Fake is an in-memory Warehouse for tests. Results and plans are matched
// by substring against the submitted SQL, first match wins; Default applies
// when nothing matches.
type Fake struct {
	mu       sync.Mutex
	results  []fakeRule
	plans    []fakePlanRule
	Default  *QueryResult
	Plan     *PlanEstimate
	Err      error
	PlanErr  error
	Executed []string
}

type fakeRule struct {
	substr string
	result *QueryResult
}

type fakePlanRule struct {
	substr string
	plan   *PlanEstimate
}

func NewFake() *Fake {
	return &Fake{
		Default: &QueryResult{JobID: "fake-job"},
		Plan:    &PlanEstimate{EstimatedRows: 100, EstimatedCostUnits: 1.0},
	}
}

// StubResult registers rows returned for SQL containing substr.
func (f *Fake) StubResult(substr string, rows []Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, fakeRule{substr: substr, result: &QueryResult{Rows: rows, JobID: "fake-job"}})
}

// StubPlan registers a plan estimate for SQL containing substr.
func (f *Fake) StubPlan(substr string, plan *PlanEstimate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, fakePlanRule{substr: substr, plan: plan})
}

func (f *Fake) Execute(_ context.Context, sql string) (*QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Executed = append(f.Executed, sql)
	if f.Err != nil {
		return nil, f.Err
	}
	for _, r := range f.results {
		if strings.Contains(sql, r.substr) {
			return r.result, nil
		}
	}
	return f.Default, nil
}

func (f *Fake) ExplainPlan(_ context.Context, sql string) (*PlanEstimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlanErr != nil {
		return nil, f.PlanErr
	}
	for _, r := range f.plans {
		if strings.Contains(sql, r.substr) {
			return r.plan, nil
		}
	}
	return f.Plan, nil
}
