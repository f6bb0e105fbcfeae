package main

import (
	"TCCTransaction/internel"
	"TCCTransaction/model"
	"TCCTransaction/pkg"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type participantView struct {
	Xid           string `json:"xid"`
	Target        string `json:"target"`
	ConfirmMethod string `json:"confirmMethod"`
	CancelMethod  string `json:"cancelMethod"`
	Editor        string `json:"editor"`
}

type transactionView struct {
	Xid            string            `json:"xid"`
	Role           string            `json:"role"`
	Status         string            `json:"status"`
	RetriedCount   int               `json:"retriedCount"`
	Version        int64             `json:"version"`
	CreateTime     time.Time         `json:"createTime"`
	LastUpdateTime time.Time         `json:"lastUpdateTime"`
	Participants   []participantView `json:"participants"`
}

func viewOf(tx *pkg.Transaction) transactionView {
	view := transactionView{
		Xid:            tx.Xid.String(),
		Role:           tx.Role.String(),
		Status:         tx.Status().String(),
		RetriedCount:   tx.RetriedCount,
		Version:        tx.Version,
		CreateTime:     tx.CreateTime,
		LastUpdateTime: tx.LastUpdateTime,
		Participants:   make([]participantView, 0, len(tx.Participants())),
	}
	for _, p := range tx.Participants() {
		view.Participants = append(view.Participants, participantView{
			Xid:           p.Xid.String(),
			Target:        p.ConfirmInvocation.TargetClass,
			ConfirmMethod: p.ConfirmInvocation.MethodName,
			CancelMethod:  p.CancelInvocation.MethodName,
			Editor:        p.TransactionContextEditor,
		})
	}
	return view
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newListCommand(cc *cliConfig) *cobra.Command {
	var olderThan time.Duration
	var outputType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transaction records not updated within --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cc.resources(cmd.Context())
			if err != nil {
				return err
			}
			defer cc.cleanup()

			txs, err := res.Repository.FindAllUnmodifiedSince(cmd.Context(), pkg.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			views := make([]transactionView, 0, len(txs))
			for _, tx := range txs {
				views = append(views, viewOf(tx))
			}

			switch strings.ToLower(strings.TrimSpace(outputType)) {
			case "json":
				return printJSON(cmd, views)
			case "", "text":
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "XID\tROLE\tSTATUS\tRETRIED\tVERSION\tLAST UPDATE\tPARTICIPANTS")
				for _, v := range views {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%d\n", v.Xid, v.Role, v.Status,
						v.RetriedCount, v.Version, v.LastUpdateTime.Format(time.RFC3339), len(v.Participants))
				}
				return w.Flush()
			default:
				return fmt.Errorf("unknown output format %q", outputType)
			}
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only records whose last update is older than this")
	cmd.Flags().StringVarP(&outputType, "output", "o", "text", "output format (text|json)")
	return cmd
}

func findTransaction(cmd *cobra.Command, repo model.TransactionRepository, s string) (*pkg.Transaction, error) {
	xid, err := pkg.ParseXid(s)
	if err != nil {
		return nil, err
	}
	tx, err := repo.FindByXid(cmd.Context(), xid)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("%w, xid: %s", pkg.ErrNoExistedTransaction, xid)
	}
	return tx, nil
}

func newShowCommand(cc *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "show <xid>",
		Short: "Print one transaction record with its participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cc.resources(cmd.Context())
			if err != nil {
				return err
			}
			defer cc.cleanup()

			tx, err := findTransaction(cmd, res.Repository, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, viewOf(tx))
		},
	}
}

func newAbandonCommand(cc *cliConfig) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "abandon <xid>",
		Short: "Delete a transaction record so recovery no longer drives it",
		Long: "Delete a transaction record so recovery no longer drives it.\n" +
			"Participants are not confirmed or cancelled; reconcile them by hand.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("abandon is irreversible, pass --yes to proceed")
			}
			res, err := cc.resources(cmd.Context())
			if err != nil {
				return err
			}
			defer cc.cleanup()

			tx, err := findTransaction(cmd, res.Repository, args[0])
			if err != nil {
				return err
			}
			if err := res.Repository.Delete(cmd.Context(), tx); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "abandoned %s (%s, %s)\n", tx.Xid, tx.Role, tx.Status())
			return err
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newResetCommand(cc *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <xid>",
		Short: "Reset the retried count so recovery picks the record up again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cc.resources(cmd.Context())
			if err != nil {
				return err
			}
			defer cc.cleanup()

			resetter, ok := res.Repository.(model.RetryResetter)
			if !ok {
				return fmt.Errorf("repository %s does not support reset", cc.cfg.Repository.Type)
			}
			xid, err := pkg.ParseXid(args[0])
			if err != nil {
				return err
			}
			if err := resetter.ResetRetriedCount(cmd.Context(), xid); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", xid)
			return err
		},
	}
}

func newMigrateCommand(cc *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the tcc_transaction table (mysql only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cc.resources(cmd.Context())
			if err != nil {
				return err
			}
			defer cc.cleanup()

			if res.DB == nil {
				return fmt.Errorf("migrate needs a mysql repository, got %s", cc.cfg.Repository.Type)
			}
			if err := internel.NewGormTXStore(res.DB).AutoMigrate(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrated tcc_transaction")
			return err
		},
	}
}
