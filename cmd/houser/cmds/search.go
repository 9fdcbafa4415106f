package cmds

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-go-golems/houser/pkg/client"
	"github.com/go-go-golems/houser/pkg/render"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// parseFilters turns key=value pairs into a filter map. Numbers and
// booleans keep their type so that filters compare like the backend's.
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.Errorf("invalid filter %q, expected key=value", p)
		}
		v = strings.TrimSpace(v)
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = i
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		} else if b, err := strconv.ParseBool(v); err == nil {
			out[k] = b
		} else {
			out[k] = v
		}
	}
	return out, nil
}

func writeOutput(w io.Writer, format string, v any, text func() (string, error)) error {
	switch format {
	case outputJSON:
		return writeJSON(w, v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case outputText, "":
		s, err := text()
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, s)
		return err
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func searchMarkdown(resp *client.SearchResponse) string {
	var sections []string
	if s := strings.TrimSpace(firstNonEmpty(resp.Summary, resp.Message)); s != "" {
		sections = append(sections, s)
	}
	if len(resp.Results) > 0 {
		sections = append(sections,
			render.ListingsMarkdown(resp.Results, false),
			render.HighlightsMarkdown(render.Highlights(resp.Results, nil)))
	}
	if len(resp.Sources) > 0 {
		var b strings.Builder
		b.WriteString("### Sources\n\n")
		for _, src := range resp.Sources {
			fmt.Fprintf(&b, "- [%s](%s)\n", firstNonEmpty(src.Title, src.URL), src.URL)
		}
		sections = append(sections, b.String())
	}
	footer := fmt.Sprintf("_Page %d, %d per page", resp.Page, resp.PageSize)
	if resp.HasMore {
		footer += ", more available"
	}
	if resp.Cached {
		footer += ", cached"
	}
	sections = append(sections, footer+"_")
	return strings.Join(sections, "\n\n") + "\n"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func NewSearchCommand() *cobra.Command {
	var (
		filters  []string
		page     int
		pageSize int
		output   string
	)
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Run a one-shot listing search",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilters(filters)
			if err != nil {
				return err
			}
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			c, err := NewClient(s)
			if err != nil {
				return err
			}
			resp, err := c.Search(cmd.Context(), client.SearchRequest{
				Query:    strings.Join(args, " "),
				Filters:  f,
				Page:     page,
				PageSize: pageSize,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, resp, func() (string, error) {
				r, err := newRenderer(cmd.OutOrStdout())
				if err != nil {
					return "", err
				}
				return r.Markdown(searchMarkdown(resp))
			})
		},
	}
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Filter as key=value (repeatable), e.g. bedrooms=2")
	cmd.Flags().IntVar(&page, "page", 1, "Result page")
	cmd.Flags().IntVar(&pageSize, "page-size", client.DefaultPageSize, "Results per page")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")
	return cmd
}

func NewStatsCommand() *cobra.Command {
	var (
		req    client.StatsRequest
		output string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show market statistics for an area or city",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			c, err := NewClient(s)
			if err != nil {
				return err
			}
			ms, err := c.Stats(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, ms, func() (string, error) {
				r, err := newRenderer(cmd.OutOrStdout())
				if err != nil {
					return "", err
				}
				return r.Markdown(render.StatsMarkdown(*ms))
			})
		},
	}
	cmd.Flags().StringVar(&req.Area, "area", "", "Area, e.g. Dubai Marina")
	cmd.Flags().StringVar(&req.City, "city", "", "City, e.g. Dubai")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")
	return cmd
}

func NewHelloCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hello [name]",
		Short: "Check that the backend is reachable",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			c, err := NewClient(s)
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			msg, err := c.Hello(cmd.Context(), name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		},
	}
}

func NewClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <query...>",
		Short: "Ask the backend whether a query is about real estate",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			c, err := NewClient(s)
			if err != nil {
				return err
			}
			ok, err := c.IsRealEstate(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
			return err
		},
	}
}
