package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/store"
)

const (
	PromptApprove = "Approve"
	PromptReject  = "Reject"
	PromptSkip    = "Skip"
	PromptBack    = "back"

	reviewRunID = "review"
)

var errBack = errors.New("back requested")

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Approve or reject outreach held for an unverified address",
	Run: func(cmd *cobra.Command, _ []string) {
		review(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().BoolP("list", "l", false, "only list held records")
}

// reviewStore is the part of the store a review touches.
type reviewStore interface {
	OutreachByStatus(ctx context.Context, statuses ...lead.OutreachStatus) ([]*lead.OutreachRecord, error)
	SaveOutreach(ctx context.Context, rec *lead.OutreachRecord) error
	Transition(ctx context.Context, e lead.LedgerEntry) error
}

func review(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	st, err := store.Open(config.Store.Path)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer st.Close()

	held, err := st.OutreachByStatus(ctx, lead.OutreachHeld)
	if err != nil {
		logger.Fatal("loading held outreach", zap.Error(err))
	}
	if len(held) == 0 {
		logger.Info("exiting", zap.String("reason", "nothing to review"))
		return
	}

	if cmd.Flag("list").Value.String() == "true" {
		for _, rec := range held {
			fmt.Println(describe(rec))
		}
		return
	}

	for len(held) > 0 {
		idx, err := pickRecord(held)
		if errors.Is(err, errBack) {
			return
		}
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		rec := held[idx]
		fmt.Println(details(rec))

		action := promptui.Select{
			Label: "Decision",
			Items: []string{PromptApprove, PromptReject, PromptSkip, PromptBack},
		}
		_, choice, err := action.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		done, err := decide(ctx, st, rec, choice, time.Now())
		if err != nil {
			logger.Error("saving decision", zap.String("item_id", rec.PostRef), zap.Error(err))
			continue
		}
		if done {
			logger.Info("reviewed", zap.String("item_id", rec.PostRef), zap.String("status", string(rec.Status)))
			held = append(held[:idx], held[idx+1:]...)
		}
	}
}

func pickRecord(held []*lead.OutreachRecord) (int, error) {
	items := make([]string, 0, len(held)+1)
	for _, rec := range held {
		items = append(items, describe(rec))
	}
	items = append(items, PromptBack)

	prompt := promptui.Select{
		Label: fmt.Sprintf("Held outreach (%d)", len(held)),
		Items: items,
		Size:  10,
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return 0, err
	}
	if idx == len(held) {
		return 0, errBack
	}
	return idx, nil
}

// decide applies a review decision. It reports whether the record left the
// held queue.
func decide(ctx context.Context, st reviewStore, rec *lead.OutreachRecord, choice string, now time.Time) (bool, error) {
	switch choice {
	case PromptApprove:
		rec.Status = lead.OutreachApproved
		rec.Approved = true
		rec.LastError = ""
	case PromptReject:
		rec.Status = lead.OutreachDiscarded
		rec.LastError = "discarded in review"
	case PromptSkip, PromptBack:
		return false, nil
	default:
		return false, fmt.Errorf("invalid action: %s", choice)
	}

	rec.UpdatedAt = now
	if err := st.SaveOutreach(ctx, rec); err != nil {
		return false, err
	}

	if rec.Status == lead.OutreachDiscarded {
		err := st.Transition(ctx, lead.LedgerEntry{
			ItemID:     rec.PostRef,
			RunID:      reviewRunID,
			State:      lead.StateFailed,
			Reason:     rec.LastError,
			CompanyKey: rec.Company.CanonicalKey,
			UpdatedAt:  now,
		})
		if err != nil {
			return true, fmt.Errorf("ledger: %w", err)
		}
	}

	return true, nil
}

func describe(rec *lead.OutreachRecord) string {
	addr := ""
	if rec.ChosenEmail != nil {
		addr = rec.ChosenEmail.Address
	}
	return fmt.Sprintf("%s <%s> %s", rec.Company.Name, addr, rec.Contact.FullName)
}

func details(rec *lead.OutreachRecord) string {
	s := fmt.Sprintf("company:  %s (%s)\ncontact:  %s, %s\n", rec.Company.Name, rec.Company.Domain, rec.Contact.FullName, rec.Contact.Title)
	if rec.ChosenEmail != nil {
		s += fmt.Sprintf("email:    %s (%s, %s)\n", rec.ChosenEmail.Address, rec.ChosenEmail.GenerationRule, rec.ChosenEmail.VerificationState)
	}
	if rec.LastError != "" {
		s += fmt.Sprintf("held:     %s\n", rec.LastError)
	}
	return s
}
