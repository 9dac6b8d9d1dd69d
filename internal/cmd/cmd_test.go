package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Iron-Ham/teamwork/internal/event"
	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/team"
	"github.com/Iron-Ham/teamwork/internal/util"
)

// resetFlags returns every flag of root and its children to its default, so
// package-level flag variables do not leak between executions.
func resetFlags(root *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	root.Flags().VisitAll(reset)
	root.PersistentFlags().VisitAll(reset)
	for _, c := range root.Commands() {
		resetFlags(c)
	}
}

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeCommand(t, args...)
	if err != nil {
		t.Fatalf("teamwork %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// setupTestEnvironment points storage and configuration at a temp dir.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("TEAMWORK_STORAGE_TEAMS_ROOT", filepath.Join(dir, "teams"))
	t.Setenv("TEAMWORK_STORAGE_TASKS_ROOT", filepath.Join(dir, "tasks"))
	t.Setenv("TEAMWORK_LOGGING_LEVEL", "error")
	t.Setenv("TEAMWORK_WORKER_POLL_INTERVAL_MS", "5")
	t.Setenv("TEAMWORK_EXECUTION_BACKOFF_BASE_MS", "1")
	t.Setenv("TEAMWORK_EXECUTION_COMMAND", "")
	return dir
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "teamwork" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "teamwork")
	}

	expected := []string{"team", "send", "work", "board", "approvals", "status", "state", "serve", "config", "logs"}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range expected {
		if !slices.Contains(got, name) {
			t.Errorf("missing subcommand %q (have %v)", name, got)
		}
	}
}

func TestParseMemberFlags(t *testing.T) {
	defs, err := parseMemberFlags([]string{"boss:lead", "dev", "qa:worker"}, []string{"qa"})
	if err != nil {
		t.Fatalf("parseMemberFlags: %v", err)
	}
	if len(defs) != 3 || defs[0].Role != "lead" || defs[1].Role != "" {
		t.Fatalf("defs = %+v", defs)
	}
	if defs[2].RequirePlanApproval == nil || !*defs[2].RequirePlanApproval {
		t.Error("qa should require plan approval")
	}

	if _, err := parseMemberFlags([]string{"dev:boss"}, nil); err == nil {
		t.Error("an unknown role should fail")
	}
	if _, err := parseMemberFlags([]string{"dev"}, []string{"ghost"}); err == nil {
		t.Error("--plan-approval for a non-member should fail")
	}
}

func TestParseTeamDefinition(t *testing.T) {
	def, err := parseTeamDefinition([]byte(`
name: docs
members:
  - name: lead
    role: lead
  - name: writer
    allowlist: [read_file, "write_*"]
  - name: reviewer
    require_plan_approval: true
`))
	if err != nil {
		t.Fatalf("parseTeamDefinition: %v", err)
	}
	if def.Name != "docs" || len(def.Members) != 3 {
		t.Fatalf("def = %+v", def)
	}
	writer := def.Members[1].member()
	if !slices.Equal(writer.ToolPolicy.Allowlist, []string{"read_file", "write_*"}) {
		t.Errorf("writer allowlist = %v", writer.ToolPolicy.Allowlist)
	}
	if !def.Members[2].member().ToolPolicy.RequiresPlanApproval() {
		t.Error("reviewer should require plan approval")
	}

	if _, err := parseTeamDefinition([]byte("name: x\nmembrs: []\n")); err == nil {
		t.Error("an unknown key should be rejected")
	}
}

func TestParseAssignments(t *testing.T) {
	long := strings.Repeat("word ", 20)
	inputs, err := parseAssignments([]string{"dev=write tests\nfor the store", "qa = " + long})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}
	if inputs[0].Owner != "dev" || inputs[0].Title != "write tests" {
		t.Errorf("first = %+v", inputs[0])
	}
	if inputs[1].Owner != "qa" || len([]rune(inputs[1].Title)) > titleWidth {
		t.Errorf("second = %+v", inputs[1])
	}

	for _, bad := range []string{"no-equals", "=instruction"} {
		if _, err := parseAssignments([]string{bad}); err == nil {
			t.Errorf("parseAssignments(%q) should fail", bad)
		}
	}
}

func TestShortTitle(t *testing.T) {
	tests := []struct {
		name, instruction, want string
	}{
		{"first line only", "write tests\nfor the store", "write tests"},
		{"trimmed", "  review the router  ", "review the router"},
		{"exact width", strings.Repeat("a", titleWidth), strings.Repeat("a", titleWidth)},
		{"cut with ellipsis", "summarize " + strings.Repeat("x", 60), "summarize " + strings.Repeat("x", titleWidth-11) + "…"},
		{"wide runes counted once", strings.Repeat("日", titleWidth+5), strings.Repeat("日", titleWidth-1) + "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shortTitle(tt.instruction)
			if got != tt.want {
				t.Errorf("shortTitle() = %q, want %q", got, tt.want)
			}
			if n := len([]rune(got)); n > titleWidth {
				t.Errorf("shortTitle() has %d runes, want <= %d", n, titleWidth)
			}
		})
	}
}

func TestFitLine(t *testing.T) {
	const running = "\x1b[38;2;96;165;250mrunning   \x1b[0m"
	boardRow := "12   " + running + " dev          refactor the inbox writer"

	tests := []struct {
		name  string
		row   string
		width int
		want  string
	}{
		{"fits", "3    pending     -            docs", 40, "3    pending     -            docs"},
		{"plain row cut", "3    pending     -            rewrite everything", 20, "3    pending     - …"},
		{"styled cell kept intact", boardRow, 100, boardRow},
		{"no room", "anything", 0, "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fitLine(tt.row, tt.width); got != tt.want {
				t.Errorf("fitLine() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("styled row measured without escapes", func(t *testing.T) {
		got := fitLine(boardRow, 24)
		if w := lipgloss.Width(got); w != 24 {
			t.Errorf("width = %d, want 24: %q", w, got)
		}
		if !strings.Contains(got, "\x1b[38;2;96;165;250m") || !strings.HasSuffix(got, "…") {
			t.Errorf("cut lost the status style or ellipsis: %q", got)
		}
	})
}

func TestFormatCounts(t *testing.T) {
	got := formatCounts(map[protocol.WorkStatus]int{
		protocol.WorkSucceeded: 2,
		protocol.WorkFailed:    1,
		protocol.WorkQueued:    0,
	})
	if got != "failed=1 succeeded=2" {
		t.Errorf("formatCounts() = %q", got)
	}
	if got := formatCounts(map[protocol.TaskStatus]int{}); got != "none" {
		t.Errorf("formatCounts(empty) = %q", got)
	}
}

func TestFormatEvent(t *testing.T) {
	rec := event.Record{
		TS:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local),
		Team:    "demo",
		Type:    protocol.EventWorkerStarted,
		Payload: map[string]any{"teammate": "dev"},
	}
	want := `03:04:05 demo worker_started {"teammate":"dev"}`
	if got := formatEvent(rec); got != want {
		t.Errorf("formatEvent() = %q, want %q", got, want)
	}
}

func TestPainterPlainOutsideTerminal(t *testing.T) {
	p := newPainter(new(bytes.Buffer))
	if got := p.status("running"); got != "running" {
		t.Errorf("status() = %q, want unstyled", got)
	}
}

func TestTeamCommands(t *testing.T) {
	setupTestEnvironment(t)

	out := mustExecute(t, "team", "create", "demo", "--member", "lead", "--member", "dev", "--plan-approval", "dev")
	if !strings.Contains(out, "Created team demo (lead lead, 1 teammates)") {
		t.Errorf("create output = %q", out)
	}
	if _, err := executeCommand(t, "team", "create", "demo", "--member", "lead"); err == nil {
		t.Error("creating a team twice should fail")
	}

	mustExecute(t, "team", "spawn", "demo", "qa", "--deny", "shell")

	out = mustExecute(t, "team", "list")
	if strings.TrimSpace(out) != "demo" {
		t.Errorf("list output = %q", out)
	}

	out = mustExecute(t, "team", "show", "demo", "--json")
	var got protocol.Team
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("show --json: %v\n%s", err, out)
	}
	if !slices.Equal(got.MemberNames(), []string{"lead", "dev", "qa"}) {
		t.Errorf("members = %v", got.MemberNames())
	}
	qa, _ := got.Member("qa")
	if !slices.Contains(qa.ToolPolicy.Denylist, "shell") || !slices.Contains(qa.ToolPolicy.Denylist, protocol.DelegationTool) {
		t.Errorf("qa denylist = %v", qa.ToolPolicy.Denylist)
	}

	out = mustExecute(t, "team", "delete", "demo")
	if !strings.Contains(out, "Deleted team demo") {
		t.Errorf("delete output = %q", out)
	}
	if _, err := executeCommand(t, "team", "show", "demo"); err == nil {
		t.Error("showing a deleted team should fail")
	}
}

func TestTeamCreateFromFile(t *testing.T) {
	dir := setupTestEnvironment(t)
	path := filepath.Join(dir, "team.yaml")
	if err := util.WriteFileAtomic(path, []byte("name: docs\nmembers:\n  - name: boss\n    role: lead\n  - name: writer\n")); err != nil {
		t.Fatal(err)
	}

	mustExecute(t, "team", "create", "--file", path)
	out := mustExecute(t, "team", "show", "docs")
	if !strings.Contains(out, "boss") || !strings.Contains(out, "writer") {
		t.Errorf("show output = %q", out)
	}
}

func TestMessagingWorkAndBoardCommands(t *testing.T) {
	setupTestEnvironment(t)
	mustExecute(t, "team", "create", "demo", "--member", "lead", "--member", "dev")

	out := mustExecute(t, "send", "demo", "dev", "please", "review", "--summary", "review", "--json")
	var sent struct {
		MessageID  string   `json:"message_id"`
		Recipients []string `json:"recipients"`
	}
	if err := json.Unmarshal([]byte(out), &sent); err != nil {
		t.Fatalf("send --json: %v\n%s", err, out)
	}
	if sent.MessageID == "" || !slices.Equal(sent.Recipients, []string{"dev"}) {
		t.Errorf("send result = %+v", sent)
	}

	out = mustExecute(t, "work", "fanout", "demo", "--assign", "dev=summarize the notes", "--json")
	var items []protocol.WorkItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("fanout --json: %v\n%s", err, out)
	}
	if len(items) != 1 || items[0].Status != protocol.WorkQueued {
		t.Fatalf("items = %+v", items)
	}

	out = mustExecute(t, "work", "cancel", "demo", items[0].WorkID)
	if !strings.Contains(out, "Canceled "+items[0].WorkID) {
		t.Errorf("cancel output = %q", out)
	}
	out = mustExecute(t, "work", "collect", "demo", items[0].WorkID)
	if !strings.Contains(out, "canceled") {
		t.Errorf("collect output = %q", out)
	}
	mustExecute(t, "work", "retry", "demo", items[0].WorkID)

	mustExecute(t, "board", "add", "demo", "write docs", "--description", "draft the guide")
	mustExecute(t, "board", "add", "demo", "publish", "--blocked-by", "1")
	out = mustExecute(t, "board", "list", "demo", "--claimable")
	if !strings.Contains(out, "write docs") || strings.Contains(out, "publish") {
		t.Errorf("claimable list = %q", out)
	}
	mustExecute(t, "board", "update", "demo", "1", "--status", "completed")
	out = mustExecute(t, "board", "list", "demo", "--claimable")
	if !strings.Contains(out, "publish") {
		t.Errorf("after completing the blocker, list = %q", out)
	}

	out = mustExecute(t, "status", "demo")
	for _, want := range []string{"TEAM demo", "dev", "work:", "queued=1", "tasks:"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestWorkFanoutWait(t *testing.T) {
	setupTestEnvironment(t)
	t.Setenv("TEAMWORK_EXECUTION_COMMAND", "tr a-z A-Z")
	mustExecute(t, "team", "create", "demo", "--member", "lead", "--member", "dev")

	out := mustExecute(t, "work", "fanout", "demo", "--assign", "dev=hello", "--wait", "--timeout", "10s", "--json")
	var report team.WorkReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("fanout --wait --json: %v\n%s", err, out)
	}
	if len(report.Items) != 1 || report.Items[0].Status != protocol.WorkSucceeded || report.Items[0].Result != "HELLO" {
		t.Errorf("report = %+v", report.Items)
	}
}

func TestStateExportAndApprovals(t *testing.T) {
	dir := setupTestEnvironment(t)
	mustExecute(t, "team", "create", "demo", "--member", "lead", "--member", "dev")

	exported := filepath.Join(dir, "export.json")
	mustExecute(t, "state", "export", "--output", exported)
	snap, err := readSnapshot(exported)
	if err != nil {
		t.Fatalf("readSnapshot: %v", err)
	}
	if len(snap.Teams) != 1 || snap.Teams[0].Team != "demo" {
		t.Fatalf("snapshot = %+v", snap)
	}

	out := mustExecute(t, "state", "import", exported)
	if !strings.Contains(out, "demo: requeued 0 work items, released 0 tasks") {
		t.Errorf("import output = %q", out)
	}

	// Stand in for a serving process with one pending approval.
	snap.Teams[0].PendingApprovals = []protocol.ApprovalRequest{{
		RequestID: "plan-1", TeamName: "demo", Teammate: "dev", TaskID: "1",
		Subject: "migrate", Status: protocol.ApprovalPending,
	}}
	stateFile := filepath.Join(dir, "state.json")
	if err := util.WriteJSONAtomic(stateFile, snap); err != nil {
		t.Fatal(err)
	}

	out = mustExecute(t, "approvals", "list", "demo", "--state-file", stateFile)
	if !strings.Contains(out, "plan-1") || !strings.Contains(out, "demo/dev") {
		t.Errorf("approvals list = %q", out)
	}

	if _, err := executeCommand(t, "approvals", "respond", "demo", "plan-1", "--state-file", stateFile); err == nil {
		t.Error("respond without --approve or --reject should fail")
	}
	out = mustExecute(t, "approvals", "respond", "demo", "plan-1", "--approve", "--feedback", "ship it", "--state-file", stateFile)
	if !strings.Contains(out, "Sent plan approved for plan-1 to dev") {
		t.Errorf("respond output = %q", out)
	}
	if _, err := executeCommand(t, "approvals", "respond", "demo", "plan-9", "--reject", "--state-file", stateFile); err == nil {
		t.Error("responding to an unknown request without --teammate should fail")
	}
}

func TestStateShowWithoutSnapshot(t *testing.T) {
	setupTestEnvironment(t)
	out := mustExecute(t, "state", "show")
	if !strings.Contains(out, "No snapshot") {
		t.Errorf("state show = %q", out)
	}
}
