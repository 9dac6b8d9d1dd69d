package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/teamwork/internal/protocol"
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Create, inspect and delete teams",
}

var teamCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a team",
	Long: `Create a team from --member flags or a YAML definition.

Members are given as name or name:role. Without an explicit lead the first
member leads. Example:
  teamwork team create docs --member lead --member writer --member reviewer --plan-approval reviewer

A definition file looks like:
  name: docs
  members:
    - name: lead
      role: lead
    - name: writer
      allowlist: [read_file, write_file]
    - name: reviewer
      require_plan_approval: true`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTeamCreate,
}

var teamDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Shut down a team's workers and delete its state",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamDelete,
}

var teamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List teams",
	Args:  cobra.NoArgs,
	RunE:  runTeamList,
}

var teamShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a team's members and policies",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamShow,
}

var teamSpawnCmd = &cobra.Command{
	Use:   "spawn <team> <name>",
	Short: "Add a teammate to a team",
	Args:  cobra.ExactArgs(2),
	RunE:  runTeamSpawn,
}

var (
	teamMembers      []string
	teamPlanApproval []string
	teamFile         string

	spawnAllow        []string
	spawnDeny         []string
	spawnPlanApproval bool
)

func init() {
	teamCreateCmd.Flags().StringArrayVarP(&teamMembers, "member", "m", nil, "member as name or name:role (repeatable)")
	teamCreateCmd.Flags().StringArrayVar(&teamPlanApproval, "plan-approval", nil, "member whose board tasks need plan approval (repeatable)")
	teamCreateCmd.Flags().StringVarP(&teamFile, "file", "f", "", "YAML team definition")

	teamSpawnCmd.Flags().StringSliceVar(&spawnAllow, "allow", nil, "tool patterns the teammate may use")
	teamSpawnCmd.Flags().StringSliceVar(&spawnDeny, "deny", nil, "tool patterns the teammate may not use")
	teamSpawnCmd.Flags().BoolVar(&spawnPlanApproval, "plan-approval", false, "require plan approval for the teammate's board tasks")

	teamCmd.AddCommand(teamCreateCmd, teamDeleteCmd, teamListCmd, teamShowCmd, teamSpawnCmd)
	rootCmd.AddCommand(teamCmd)
}

// teamDefinition is the YAML form of a team.
type teamDefinition struct {
	Name    string             `yaml:"name"`
	Members []memberDefinition `yaml:"members"`
}

type memberDefinition struct {
	Name                string   `yaml:"name"`
	Role                string   `yaml:"role,omitempty"`
	Allowlist           []string `yaml:"allowlist,omitempty"`
	Denylist            []string `yaml:"denylist,omitempty"`
	RequirePlanApproval *bool    `yaml:"require_plan_approval,omitempty"`
}

func (d memberDefinition) member() protocol.Member {
	return protocol.Member{
		Name: d.Name,
		Role: protocol.Role(d.Role),
		ToolPolicy: protocol.ToolPolicy{
			Allowlist:           d.Allowlist,
			Denylist:            d.Denylist,
			RequirePlanApproval: d.RequirePlanApproval,
		},
	}
}

// parseTeamDefinition decodes a YAML team definition. Unknown keys are
// rejected so a typo does not silently drop a policy.
func parseTeamDefinition(data []byte) (teamDefinition, error) {
	var def teamDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return teamDefinition{}, fmt.Errorf("invalid team definition: %w", err)
	}
	return def, nil
}

// parseMemberFlags turns name[:role] flags into member definitions.
func parseMemberFlags(specs, planApproval []string) ([]memberDefinition, error) {
	defs := make([]memberDefinition, 0, len(specs))
	for _, spec := range specs {
		name, role, _ := strings.Cut(spec, ":")
		if role != "" && !protocol.Role(role).IsValid() {
			return nil, fmt.Errorf("member %q: role must be %s or %s", spec, protocol.RoleLead, protocol.RoleWorker)
		}
		defs = append(defs, memberDefinition{Name: name, Role: role})
	}
	for _, name := range planApproval {
		found := false
		for i := range defs {
			if defs[i].Name == name {
				defs[i].RequirePlanApproval = protocol.BoolPtr(true)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("--plan-approval %q is not a member", name)
		}
	}
	return defs, nil
}

func runTeamCreate(cmd *cobra.Command, args []string) error {
	var def teamDefinition
	if teamFile != "" {
		data, err := os.ReadFile(teamFile)
		if err != nil {
			return fmt.Errorf("failed to read team definition: %w", err)
		}
		if def, err = parseTeamDefinition(data); err != nil {
			return err
		}
	}
	if len(args) == 1 {
		def.Name = args[0]
	}
	if def.Name == "" {
		return fmt.Errorf("a team name is required, as an argument or in --file")
	}
	flagged, err := parseMemberFlags(teamMembers, teamPlanApproval)
	if err != nil {
		return err
	}
	def.Members = append(def.Members, flagged...)

	members := make([]protocol.Member, 0, len(def.Members))
	for _, d := range def.Members {
		members = append(members, d.member())
	}

	return withSession(func(s *session) error {
		t, err := s.manager.CreateTeam(cmd.Context(), def.Name, members)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), t)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created team %s (lead %s, %d teammates)\n",
			t.TeamName, t.Lead(), len(t.Workers()))
		return nil
	})
}

func runTeamDelete(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		if err := s.manager.DeleteTeam(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted team %s\n", args[0])
		return nil
	})
}

func runTeamList(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		names, err := s.manager.ListTeams()
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), names)
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No teams")
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	})
}

func runTeamShow(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		t, err := s.manager.GetTeam(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if wantJSON(cmd) {
			return printJSON(out, t)
		}
		p := newPainter(out)
		fmt.Fprintln(out, p.title(t.TeamName))
		fmt.Fprintf(out, "%s %s\n", p.muted("created"), t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		for _, m := range t.Members {
			line := fmt.Sprintf("  %-16s %s", m.Name, m.Role)
			if m.ToolPolicy.RequiresPlanApproval() {
				line += "  plan-approval"
			}
			if len(m.ToolPolicy.Allowlist) > 0 {
				line += "  allow=" + strings.Join(m.ToolPolicy.Allowlist, ",")
			}
			if len(m.ToolPolicy.Denylist) > 0 {
				line += "  deny=" + strings.Join(m.ToolPolicy.Denylist, ",")
			}
			fmt.Fprintln(out, line)
		}
		return nil
	})
}

func runTeamSpawn(cmd *cobra.Command, args []string) error {
	member := protocol.Member{
		Name: args[1],
		Role: protocol.RoleWorker,
		ToolPolicy: protocol.ToolPolicy{
			Allowlist: spawnAllow,
			Denylist:  spawnDeny,
		},
	}
	if spawnPlanApproval {
		member.ToolPolicy.RequirePlanApproval = protocol.BoolPtr(true)
	}
	return withSession(func(s *session) error {
		m, err := s.manager.SpawnTeammate(cmd.Context(), args[0], member)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), m)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", m.Name, args[0])
		return nil
	})
}
