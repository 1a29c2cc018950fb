package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stash/internal/api"
	"stash/internal/config"
)

// newRemoteCmd groups commands that talk to a running server over HTTP.
func newRemoteCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a running stash server",
	}
	cmd.AddCommand(
		newRemoteStatusCmd(cfg),
		newRemoteSignInCmd(cfg),
		newRemoteVerifyCmd(cfg),
		newRemoteFilesCmd(cfg),
		newRemoteUsageCmd(cfg),
	)
	return cmd
}

type remoteStatus struct {
	APIURL        string      `json:"api_url"`
	Reachable     bool        `json:"reachable"`
	Authenticated bool        `json:"authenticated"`
	User          *remoteUser `json:"user,omitempty"`
}

type remoteUser struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

func newRemoteStatusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the server and the STASH_SESSION session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(cfg.APIURL)
			if err := client.Ping(cmd.Context()); err != nil {
				return err
			}
			status := remoteStatus{APIURL: cfg.APIURL, Reachable: true}
			me, err := client.Me(cmd.Context())
			if err != nil {
				return err
			}
			status.Authenticated = me.Authenticated
			if me.User != nil {
				status.User = &remoteUser{Email: me.User.Email, FullName: me.User.FullName}
			}
			return writeOutput(status)
		},
	}
}

func newRemoteSignInCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sign-in <email>",
		Short: "Mail a sign-in code and print the account id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := api.NewClient(cfg.APIURL).SignIn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if resp.AccountID == nil {
				return fmt.Errorf("%s", resp.Error)
			}
			return writePlain("%s\n", *resp.AccountID)
		},
	}
}

func newRemoteVerifyCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <account-id> <code>",
		Short: "Exchange a code for a session and print an export line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := api.NewClient(cfg.APIURL).Verify(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return writePlain("export STASH_SESSION=%s\n", secret)
		},
	}
}

func newRemoteFilesCmd(cfg *config.Config) *cobra.Command {
	var types []string
	var search string
	var sort string
	var limit int

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List files visible to the STASH_SESSION user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if len(types) > 0 {
				query.Set("type", strings.Join(types, ","))
			}
			if search != "" {
				query.Set("search", search)
			}
			if sort != "" {
				query.Set("sort", sort)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			resp, err := api.NewClient(cfg.APIURL).ListFiles(cmd.Context(), query)
			if err != nil {
				return err
			}
			if resp.Error != "" {
				return fmt.Errorf("%s", resp.Error)
			}
			return writeOutput(resp)
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "file types to include (image, video, audio, document, other)")
	cmd.Flags().StringVar(&search, "search", "", "match file names")
	cmd.Flags().StringVar(&sort, "sort", "", "sort as field-asc or field-desc")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of files")
	return cmd
}

func newRemoteUsageCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show storage usage of the STASH_SESSION user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := api.NewClient(cfg.APIURL).Usage(cmd.Context())
			if err != nil {
				return err
			}
			if resp.Error != "" {
				return fmt.Errorf("%s", resp.Error)
			}
			return writeOutput(resp)
		},
	}
}
