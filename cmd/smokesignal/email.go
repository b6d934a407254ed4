package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anime-shed/smokesignal-go/internal/alert"
	"github.com/anime-shed/smokesignal-go/internal/factory"
	"github.com/anime-shed/smokesignal-go/pkg/models"
)

const testSubjectPrefix = "[Test] "

var errEmailNotConfigured = errors.New("email credentials not configured")

type emailCheck struct {
	Alerts      models.AlertsStatus `json:"alerts"`
	Environment map[string]string   `json:"environment"`
	Valid       bool                `json:"valid"`
	Sent        bool                `json:"sent"`
	Message     string              `json:"message"`
}

func checkEmailCommand(ctx *cliContext) *cobra.Command {
	var send bool

	cmd := &cobra.Command{
		Use:   "check-email",
		Short: "Check the alert email settings",
		Long: `Report which email settings are present and build the SMTP sender.

With --send a test alert is delivered to TARGET_EMAIL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg
			email := cfg.EmailStatus()
			report := emailCheck{
				Alerts: models.AlertsStatus{
					Enabled:         cfg.AlertsEnabled,
					EmailAddress:    email.EmailAddress,
					EmailPassword:   email.EmailPassword,
					TargetEmail:     email.TargetEmail,
					FullyConfigured: email.FullyConfigured,
				},
				Environment: cfg.Environment(),
			}

			err := checkEmail(factory.EmailSettings(cfg), send, &report)
			if encErr := writeJSON(cmd, report); encErr != nil {
				return encErr
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&send, "send", false, "Send a test alert")

	return cmd
}

func checkEmail(settings alert.EmailSettings, send bool, report *emailCheck) error {
	if !report.Alerts.FullyConfigured {
		report.Message = "Email credentials not configured"
		return errEmailNotConfigured
	}

	d, err := alert.NewEmailDispatcher(settings)
	if err != nil {
		report.Message = fmt.Sprintf("Email configuration test failed: %v", err)
		return err
	}
	report.Valid = true
	report.Message = "Email configuration is valid"
	if !send {
		return nil
	}

	msg := alert.ComposeMessage(time.Now(), alert.Options{})
	msg.Subject = testSubjectPrefix + msg.Subject
	if err := d.Send(msg); err != nil {
		report.Message = fmt.Sprintf("Test alert failed: %v", err)
		return err
	}
	report.Sent = true
	report.Message = "Test alert sent to " + d.Target()
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
