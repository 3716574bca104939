package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cmdvault/db"
	"cmdvault/model"
	"cmdvault/template"
)

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid command id %q", arg)
	}
	return id, nil
}

func notFound(err error, id int64) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("command %d not found", id)
	}
	return err
}

func newAddCmd(s *session) *cobra.Command {
	var (
		name     string
		desc     string
		exitCode int
		tags     []string
	)

	cmd := &cobra.Command{
		Use:   "add <command>...",
		Short: "Store a command",
		Long: `Store a command. Use @name or @name:description to mark values that are
asked for when the command runs, and \@ for a literal @. Quote the command,
or put it after --, so its own flags are not read as cmdvault flags.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("command must not be empty")
			}

			tmpl, err := template.Parse(text)
			if err != nil {
				return err
			}

			dup, err := s.db.IsDuplicate(text, 0)
			if err != nil {
				return err
			}
			if dup {
				return errors.New("a command with this exact text already exists")
			}

			dir, err := os.Getwd()
			if err != nil {
				return err
			}

			c := model.Command{
				Name:        name,
				Cmd:         text,
				Description: desc,
				Directory:   dir,
				Tags:        db.NormalizeTags(tags),
			}
			if cmd.Flags().Changed("exit-code") {
				c.ExitCode = &exitCode
			}

			id, err := s.db.Add(c)
			if err != nil {
				return err
			}
			s.log.Info("command added", zap.Int64("id", id), zap.Strings("params", tmpl.Params().Names()))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", okColor.Sprint("Added"), idColor.Sprintf("[%d]", id))
			printParams(out, tmpl.Params())
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "short name shown in listings")
	cmd.Flags().StringVarP(&desc, "description", "d", "", "description")
	cmd.Flags().IntVarP(&exitCode, "exit-code", "e", 0, "exit code of the command's last run")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag to attach (repeatable, comma separated)")
	return cmd
}

func newSearchCmd(s *session) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find commands containing text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				limit = s.cfg.ListLimit
			}
			cmds, err := s.db.Search(args[0], limit)
			if err != nil {
				return err
			}
			printCommands(cmd.OutOrStdout(), cmds)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum number of results (default list.limit)")
	return cmd
}

func newListCmd(s *session) *cobra.Command {
	var (
		limit int
		asc   bool
	)

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List stored commands, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				limit = s.cfg.ListLimit
			}
			cmds, err := s.db.List(model.Query{Limit: limit, Ascending: asc})
			if err != nil {
				return err
			}
			printCommands(cmd.OutOrStdout(), cmds)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum number of commands, 0 for all (default list.limit)")
	cmd.Flags().BoolVar(&asc, "asc", false, "oldest first")
	return cmd
}

func newDeleteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored command",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := s.db.Delete(id); err != nil {
				return notFound(err, id)
			}
			s.log.Info("command deleted", zap.Int64("id", id))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okColor.Sprint("Deleted"), idColor.Sprintf("[%d]", id))
			return nil
		},
	}
}

func newTagCmd(s *session) *cobra.Command {
	tag := &cobra.Command{
		Use:   "tag",
		Short: "Manage command tags",
	}

	var limit int
	search := &cobra.Command{
		Use:   "search <tag>",
		Short: "List commands carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				limit = s.cfg.ListLimit
			}
			cmds, err := s.db.SearchByTag(strings.TrimSpace(args[0]), limit)
			if err != nil {
				return err
			}
			printCommands(cmd.OutOrStdout(), cmds)
			return nil
		},
	}
	search.Flags().IntVarP(&limit, "limit", "l", 0, "maximum number of results (default list.limit)")

	tag.AddCommand(
		&cobra.Command{
			Use:   "add <id> <tag>...",
			Short: "Attach tags to a command",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				tags := db.NormalizeTags(args[1:])
				if len(tags) == 0 {
					return errors.New("no tags given")
				}
				if err := s.db.AddTags(id, tags); err != nil {
					return notFound(err, id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", okColor.Sprint("Tagged"),
					idColor.Sprintf("[%d]", id), tagColor.Sprint("#"+strings.Join(tags, " #")))
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <id> <tag>",
			Short: "Detach a tag from a command",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if _, err := s.db.Get(id); err != nil {
					return notFound(err, id)
				}
				if err := s.db.RemoveTag(id, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s from %s\n", okColor.Sprint("Removed"),
					tagColor.Sprint("#"+strings.TrimSpace(args[1])), idColor.Sprintf("[%d]", id))
				return nil
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List tags with usage counts",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				tags, err := s.db.ListTags()
				if err != nil {
					return err
				}
				printTags(cmd.OutOrStdout(), tags)
				return nil
			},
		},
		search,
	)
	return tag
}
