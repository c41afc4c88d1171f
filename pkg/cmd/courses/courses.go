package courses

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/touge-service-manager-go/pkg/config"
	"github.com/mpapenbr/touge-service-manager-go/pkg/course"
)

var useTrackFinish bool

func NewCoursesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "courses",
		Short: "commands for the course file",
	}
	cmd.PersistentFlags().StringVar(&config.CourseFile,
		"course-file",
		"courses.yml",
		"file with the course definitions")
	cmd.AddCommand(newListCmd(), newInitCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "lists the courses of a track",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := course.Load(config.CourseFile,
				course.TrackName(config.TrackName), useTrackFinish)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, renderCourses(c))
			return nil
		},
	}
	cmd.Flags().StringVar(&config.TrackName,
		"track",
		"",
		"track name as reported by the game server")
	cmd.Flags().BoolVar(&useTrackFinish,
		"use-track-finish",
		true,
		"courses may omit the finish line")
	return cmd
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "creates a sample course file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(config.CourseFile); err == nil {
				return fmt.Errorf("%s already exists", config.CourseFile)
			}
			return course.WriteSample(config.CourseFile)
		},
	}
}

func renderCourses(c *course.Courses) string {
	t := table.NewWriter()
	t.SetTitle(c.Track)
	t.AppendHeader(table.Row{"Course", "Starting slots", "Finish line"})
	for i, item := range c.All() {
		name := item.Name
		if i == 0 {
			name += " (default)"
		}
		finish := "track"
		if item.FinishLine != nil {
			l := item.FinishLine
			finish = fmt.Sprintf("(%.1f, %.1f) - (%.1f, %.1f)", l[0].X, l[0].Y, l[1].X, l[1].Y)
		}
		t.AppendRow(table.Row{name, len(item.StartingSlots), finish})
	}
	t.SetStyle(table.StyleRounded)
	return t.Render()
}
