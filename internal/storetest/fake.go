// Package storetest provides an in-memory store.Store implementation for
// exercising the service packages (pkg/approval, pkg/deployment,
// pkg/regression, pkg/versiongraph) without a database, grounded in the
// teacher's own preference for behavioral tests over a fully mocked
// persistence layer — here adapted to a hand-rolled fake rather than the
// teacher's real ent-backed test database, since these packages' business
// logic (vote counting, lifecycle transitions, auto-rollback wiring) is what
// is under test, not SQL itself (see pkg/store's own tests for that).
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/agentlightning/promptctl/pkg/store"
)

var _ store.Store = (*Fake)(nil)

// Fake is an in-memory store.Store. Zero value is unusable; use New.
type Fake struct {
	mu sync.Mutex

	seq int

	agents            map[string]*models.Agent
	branches          map[string]*models.Branch
	versions          map[string]*models.PromptVersion
	approvalRequests  map[string]*models.ApprovalRequest
	approvalVotes     map[string][]*models.ApprovalVote
	deployments       map[string]*models.Deployment
	regressionReports map[string][]*models.RegressionReport
	reviewers         map[string]*models.Reviewer

	trajectoryMetrics models.MetricsWindow
	versionMetrics    map[string]models.MetricsWindow
	comparisonFeed    map[string][]*models.ComparisonFeedback
	trajectoryCounts  map[string][2]int // versionID -> [success, total]

	pingErr error
}

// New constructs an empty Fake.
func New() *Fake {
	return &Fake{
		agents:            make(map[string]*models.Agent),
		branches:          make(map[string]*models.Branch),
		versions:          make(map[string]*models.PromptVersion),
		approvalRequests:  make(map[string]*models.ApprovalRequest),
		approvalVotes:     make(map[string][]*models.ApprovalVote),
		deployments:       make(map[string]*models.Deployment),
		regressionReports: make(map[string][]*models.RegressionReport),
		reviewers:         make(map[string]*models.Reviewer),
		versionMetrics:    make(map[string]models.MetricsWindow),
		comparisonFeed:    make(map[string][]*models.ComparisonFeedback),
		trajectoryCounts:  make(map[string][2]int),
	}
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

// SetPingErr makes Ping return err (nil to clear).
func (f *Fake) SetPingErr(err error) { f.pingErr = err }

// PutReviewer seeds a reviewer for tests to reference by ID.
func (f *Fake) PutReviewer(r *models.Reviewer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewers[r.ID] = r
}

// PutAgent seeds an agent.
func (f *Fake) PutAgent(a *models.Agent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[a.ID] = a
}

// PutVersion seeds a prompt version, assigning an ID if empty.
func (f *Fake) PutVersion(v *models.PromptVersion) *models.PromptVersion {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.ID == "" {
		v.ID = f.nextID("version")
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	f.versions[v.ID] = v
	return v
}

// PutBranch seeds a branch, assigning an ID if empty.
func (f *Fake) PutBranch(b *models.Branch) *models.Branch {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == "" {
		b.ID = f.nextID("branch")
	}
	f.branches[b.ID] = b
	return b
}

// PutComparisonFeedback seeds a comparison feedback record returned by
// GetComparisonFeedback(ctx, versionID).
func (f *Fake) PutComparisonFeedback(versionID string, fb *models.ComparisonFeedback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comparisonFeed[versionID] = append(f.comparisonFeed[versionID], fb)
}

// SetTrajectoryCounts fixes the (success, total) pair returned by
// CountSuccessfulTrajectories for versionID.
func (f *Fake) SetTrajectoryCounts(versionID string, success, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trajectoryCounts[versionID] = [2]int{success, total}
}

// SetTrajectoryMetrics fixes the window returned by GetTrajectoryMetrics.
func (f *Fake) SetTrajectoryMetrics(w models.MetricsWindow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trajectoryMetrics = w
}

// SetVersionMetricsWindow fixes the window returned by GetVersionMetrics for versionID.
func (f *Fake) SetVersionMetricsWindow(versionID string, w models.MetricsWindow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versionMetrics[versionID] = w
}

// Deployment reads back the deployment stored for id, for test assertions.
func (f *Fake) Deployment(id string) *models.Deployment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deployments[id]
}

// Version reads back the version stored for id, for test assertions.
func (f *Fake) Version(id string) *models.PromptVersion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[id]
}

// WithTx runs fn directly against f; the fake has no real transactional
// isolation, matching the single-goroutine, synchronous nature of these tests.
func (f *Fake) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return fn(ctx, f)
}

// --- Agents ---

func (f *Fake) EnsureAgent(ctx context.Context, agentID, name string) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.agents[agentID]; ok {
		return a, nil
	}
	a := &models.Agent{ID: agentID, Name: name}
	f.agents[agentID] = a
	return a, nil
}

func (f *Fake) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (f *Fake) SetAgentProductionVersion(ctx context.Context, agentID string, versionID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentID]
	if !ok {
		return store.ErrNotFound
	}
	a.CurrentProductionVersionID = versionID
	return nil
}

// --- Branches ---

func (f *Fake) CreateBranch(ctx context.Context, b *models.Branch) (*models.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == "" {
		b.ID = f.nextID("branch")
	}
	b.CreatedAt = time.Now()
	cp := *b
	f.branches[b.ID] = &cp
	return &cp, nil
}

func (f *Fake) GetBranch(ctx context.Context, id string) (*models.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (f *Fake) GetBranchByName(ctx context.Context, agentID, name string) (*models.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.branches {
		if b.AgentID == agentID && b.Name == name {
			return b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Fake) ListBranches(ctx context.Context, agentID string) ([]*models.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Branch
	for _, b := range f.branches {
		if b.AgentID == agentID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) DeleteBranch(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.branches[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.branches, id)
	return nil
}

func (f *Fake) CountVersionsInBranch(ctx context.Context, branchID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.versions {
		if v.BranchID == branchID {
			n++
		}
	}
	return n, nil
}

// --- Prompt versions ---

func (f *Fake) GetPromptVersion(ctx context.Context, id string) (*models.PromptVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (f *Fake) GetPromptVersions(ctx context.Context, ids []string) ([]*models.PromptVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.PromptVersion, 0, len(ids))
	for _, id := range ids {
		if v, ok := f.versions[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *Fake) CreatePromptVersion(ctx context.Context, v *models.PromptVersion) (*models.PromptVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.ID == "" {
		v.ID = f.nextID("version")
	}
	maxV := 0
	for _, existing := range f.versions {
		if existing.AgentID == v.AgentID && existing.BranchID == v.BranchID && existing.Version > maxV {
			maxV = existing.Version
		}
	}
	v.Version = maxV + 1
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	cp := *v
	f.versions[v.ID] = &cp
	return &cp, nil
}

func (f *Fake) SetVersionStatus(ctx context.Context, id string, status models.VersionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok {
		return store.ErrNotFound
	}
	v.Status = status
	return nil
}

func (f *Fake) SetVersionLifecycle(ctx context.Context, id string, status models.VersionStatus, deployedAt, retiredAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok {
		return store.ErrNotFound
	}
	v.Status = status
	if deployedAt != nil {
		v.DeployedAt = deployedAt
	}
	if retiredAt != nil {
		v.RetiredAt = retiredAt
	}
	return nil
}

func (f *Fake) AppendApprover(ctx context.Context, versionID, approverEmail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[versionID]
	if !ok {
		return store.ErrNotFound
	}
	v.ApprovedBy = append(v.ApprovedBy, approverEmail)
	return nil
}

func (f *Fake) UpdateVersionFitness(ctx context.Context, id string, fit models.Fitness) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok {
		return store.ErrNotFound
	}
	v.Fitness = fit
	return nil
}

func (f *Fake) ListVersionsByBranch(ctx context.Context, branchID string) ([]*models.PromptVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PromptVersion
	for _, v := range f.versions {
		if v.BranchID == branchID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (f *Fake) TipOfBranch(ctx context.Context, branchID string) (*models.PromptVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tip *models.PromptVersion
	for _, v := range f.versions {
		if v.BranchID == branchID && (tip == nil || v.Version > tip.Version) {
			tip = v
		}
	}
	if tip == nil {
		return nil, store.ErrNotFound
	}
	return tip, nil
}

// --- Approvals ---

func (f *Fake) CreateApprovalRequest(ctx context.Context, r *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == "" {
		r.ID = f.nextID("approval")
	}
	r.RequestedAt = time.Now()
	cp := *r
	f.approvalRequests[r.ID] = &cp
	return &cp, nil
}

func (f *Fake) GetApprovalRequest(ctx context.Context, versionID string) (*models.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.approvalRequests {
		if r.VersionID == versionID {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Fake) GetApprovalRequestByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.approvalRequests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (f *Fake) UpdateApprovalRequestStatus(ctx context.Context, id string, status models.ApprovalStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.approvalRequests[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	return nil
}

func (f *Fake) IncrementApprovalCount(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.approvalRequests[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	r.CurrentApprovals++
	return r.CurrentApprovals, nil
}

func (f *Fake) CreateApprovalVote(ctx context.Context, v *models.ApprovalVote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.approvalVotes[v.RequestID] {
		if existing.ApproverID == v.ApproverID {
			return store.NewConflict("AlreadyVoted")
		}
	}
	if v.ID == "" {
		v.ID = f.nextID("vote")
	}
	v.VotedAt = time.Now()
	cp := *v
	f.approvalVotes[v.RequestID] = append(f.approvalVotes[v.RequestID], &cp)
	return nil
}

func (f *Fake) HasVoted(ctx context.Context, requestID, approverID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.approvalVotes[requestID] {
		if v.ApproverID == approverID {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fake) GetApprovalVotes(ctx context.Context, requestID string) ([]*models.ApprovalVote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.ApprovalVote(nil), f.approvalVotes[requestID]...), nil
}

func (f *Fake) ListPendingApprovals(ctx context.Context) ([]*models.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ApprovalRequest
	for _, r := range f.approvalRequests {
		if r.Status == models.ApprovalPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) ExpirePendingApprovalsBefore(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.approvalRequests {
		if r.Status == models.ApprovalPending && r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			r.Status = models.ApprovalExpired
			n++
		}
	}
	return n, nil
}

// --- Deployments ---

func (f *Fake) CreateDeployment(ctx context.Context, d *models.Deployment) (*models.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.deployments {
		if existing.AgentID == d.AgentID && existing.Status == models.DeploymentActive {
			return nil, store.NewConflict("agent already has an active deployment")
		}
	}
	if d.ID == "" {
		d.ID = f.nextID("deployment")
	}
	if d.Status == "" {
		d.Status = models.DeploymentActive
	}
	d.DeployedAt = time.Now()
	cp := *d
	f.deployments[d.ID] = &cp
	return &cp, nil
}

func (f *Fake) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *Fake) GetCurrentDeployment(ctx context.Context, agentID string) (*models.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deployments {
		if d.AgentID == agentID && d.Status == models.DeploymentActive {
			return d, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Fake) GetDeploymentHistory(ctx context.Context, agentID string, limit int) ([]*models.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Deployment
	for _, d := range f.deployments {
		if d.AgentID == agentID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeployedAt.After(out[j].DeployedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) UpdateDeploymentStatus(ctx context.Context, id string, status models.DeploymentStatus, supersededAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = status
	if supersededAt != nil {
		d.SupersededAt = supersededAt
	}
	return nil
}

func (f *Fake) UpdateDeploymentMetrics(ctx context.Context, id string, baseline, post *models.MetricsWindow, regressionDetected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return store.ErrNotFound
	}
	if baseline != nil {
		d.MetricsBaseline = baseline
	}
	if post != nil {
		d.MetricsPostDeployment = post
	}
	d.RegressionDetected = regressionDetected
	return nil
}

func (f *Fake) RollbackDeployment(ctx context.Context, id, rolledBackBy, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = models.DeploymentRolledBack
	d.RolledBackAt = &at
	d.RolledBackBy = &rolledBackBy
	d.RollbackReason = &reason
	return nil
}

func (f *Fake) ReactivateDeployment(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, existing := range f.deployments {
		if existing.ID != id && existing.AgentID == d.AgentID && existing.Status == models.DeploymentActive {
			return store.NewConflict("agent already has an active deployment")
		}
	}
	d.Status = models.DeploymentActive
	d.SupersededAt = nil
	return nil
}

func (f *Fake) ListActiveDeploymentsDue(ctx context.Context, from, to time.Time) ([]*models.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Deployment
	for _, d := range f.deployments {
		if d.Status != models.DeploymentActive || d.RegressionDetected {
			continue
		}
		if (d.DeployedAt.Equal(from) || d.DeployedAt.After(from)) && d.DeployedAt.Before(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

// --- Regression reports ---

func (f *Fake) CreateRegressionReport(ctx context.Context, r *models.RegressionReport) (*models.RegressionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == "" {
		r.ID = f.nextID("report")
	}
	cp := *r
	f.regressionReports[r.DeploymentID] = append(f.regressionReports[r.DeploymentID], &cp)
	return &cp, nil
}

func (f *Fake) GetLatestRegressionReport(ctx context.Context, deploymentID string) (*models.RegressionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reports := f.regressionReports[deploymentID]
	if len(reports) == 0 {
		return nil, store.ErrNotFound
	}
	return reports[len(reports)-1], nil
}

// --- Reviewers ---

func (f *Fake) GetReviewer(ctx context.Context, id string) (*models.Reviewer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviewers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (f *Fake) GetReviewerByEmail(ctx context.Context, email string) (*models.Reviewer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reviewers {
		if r.Email == email {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Fake) FindAnyAdmin(ctx context.Context) (*models.Reviewer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reviewers {
		if r.Role == models.RoleAdmin {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Fake) TouchReviewerActivity(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviewers[id]
	if !ok {
		return store.ErrNotFound
	}
	r.LastActiveAt = &at
	return nil
}

// --- Metrics reads ---

func (f *Fake) GetTrajectoryMetrics(ctx context.Context, agentID string, start, end time.Time) (models.MetricsWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.trajectoryMetrics
	w.Period = models.Period{Start: start, End: end}
	return w, nil
}

func (f *Fake) GetVersionMetrics(ctx context.Context, versionID string, start, end time.Time) (models.MetricsWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.versionMetrics[versionID]
	w.Period = models.Period{Start: start, End: end}
	return w, nil
}

func (f *Fake) GetComparisonFeedback(ctx context.Context, versionID string) ([]*models.ComparisonFeedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comparisonFeed[versionID], nil
}

func (f *Fake) CountSuccessfulTrajectories(ctx context.Context, versionID string) (success, total int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := f.trajectoryCounts[versionID]
	return counts[0], counts[1], nil
}

func (f *Fake) Ping(ctx context.Context) error {
	return f.pingErr
}
