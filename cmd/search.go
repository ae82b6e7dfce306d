package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/borgius/n8n-local/internal/jobspy"
)

type searchFlags struct {
	params        string
	searchTerm    string
	location      string
	siteNames     string
	jobType       string
	resultsWanted int
	hoursOld      int
	distance      int
	isRemote      bool
	countryIndeed string
	ingest        bool
}

func newSearchCmd() *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one JobSpy search and print the raw response",
		Long: `Submits a search to JobSpy and prints the response body unchanged.
Parameters come from --params (a JSON object) and the convenience flags;
flags win over keys in --params. With --ingest the returned jobs are also
upserted and the run summary is printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			params, err := f.searchParams(cmd)
			if err != nil {
				return err
			}
			if f.ingest {
				res, err := appInstance.Service().SearchAndIngest(cmd.Context(), params)
				if err != nil {
					return fmt.Errorf("search and ingest: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), res)
			}
			raw, err := appInstance.Service().Search(cmd.Context(), params)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.params, "params", "", `search parameters as a JSON object, e.g. '{"searchTerm":"go developer"}'`)
	flags.StringVar(&f.searchTerm, "search-term", "", "search term")
	flags.StringVar(&f.location, "location", "", "location")
	flags.StringVar(&f.siteNames, "site", "", "comma separated site names, e.g. indeed,linkedin")
	flags.StringVar(&f.jobType, "job-type", "", "fulltime, parttime, internship or contract")
	flags.IntVar(&f.resultsWanted, "results", 0, "number of results wanted per site")
	flags.IntVar(&f.hoursOld, "hours-old", 0, "only listings posted within this many hours")
	flags.IntVar(&f.distance, "distance", 0, "search radius in miles")
	flags.BoolVar(&f.isRemote, "remote", false, "remote listings only")
	flags.StringVar(&f.countryIndeed, "country", "", "Indeed country")
	flags.BoolVar(&f.ingest, "ingest", false, "upsert the returned jobs")
	return cmd
}

// searchParams merges --params with the flags the user set explicitly.
func (f *searchFlags) searchParams(cmd *cobra.Command) (jobspy.SearchParams, error) {
	params := jobspy.SearchParams{}
	if f.params != "" {
		if err := json.Unmarshal([]byte(f.params), &params); err != nil {
			return nil, fmt.Errorf("--params must be a JSON object: %w", err)
		}
		if params == nil {
			params = jobspy.SearchParams{}
		}
	}
	set := func(flag, key string, v any) {
		if cmd.Flags().Changed(flag) {
			params[key] = v
		}
	}
	set("search-term", jobspy.ParamSearchTerm, f.searchTerm)
	set("location", jobspy.ParamLocation, f.location)
	set("site", jobspy.ParamSiteNames, f.siteNames)
	set("job-type", jobspy.ParamJobType, f.jobType)
	set("results", jobspy.ParamResultsWanted, f.resultsWanted)
	set("hours-old", jobspy.ParamHoursOld, f.hoursOld)
	set("distance", jobspy.ParamDistance, f.distance)
	set("remote", jobspy.ParamIsRemote, f.isRemote)
	set("country", jobspy.ParamCountryIndeed, f.countryIndeed)
	return params, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
