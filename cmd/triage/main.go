package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/di"
	"github.com/mikey/mail-triage/internal/ports"
	"go.uber.org/zap"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run reads a single email, triages it and prints the outcome
func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	messageFilter ports.MessageFilter,
	advisory core.AdvisoryClient,
) error {
	defer logger.Sync()

	// Read email from file or stdin
	var emailReader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", flags.InputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	email, err := emailFromMessage(msg)
	if err != nil {
		logger.Fatal("Failed to extract email content", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := messageFilter.ProcessEmail(ctx, email); err != nil {
		logger.Error("Triage failed", zap.Error(err))
	}

	// Close the advisory client if it holds connections
	if closer, ok := advisory.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close advisory client", zap.Error(err))
		}
	}

	return nil
}

// emailFromMessage builds a core.Email from a parsed message
func emailFromMessage(msg *mail.Message) (*core.Email, error) {
	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, err
	}

	email := &core.Email{
		From:       msg.Header.Get("From"),
		Subject:    msg.Header.Get("Subject"),
		Body:       string(bodyBytes),
		MessageID:  strings.Trim(msg.Header.Get("Message-Id"), "<> "),
		ReceivedAt: time.Now(),
		Headers:    make(map[string][]string),
	}

	if addr, err := mail.ParseAddress(email.From); err == nil {
		email.From = addr.Address
	}
	if toList, err := msg.Header.AddressList("To"); err == nil {
		for _, addr := range toList {
			email.To = append(email.To, addr.Address)
		}
	}
	if ccList, err := msg.Header.AddressList("Cc"); err == nil {
		for _, addr := range ccList {
			email.Cc = append(email.Cc, addr.Address)
		}
	}
	if refs := msg.Header.Get("In-Reply-To"); refs != "" {
		email.ThreadID = strings.Trim(refs, "<> ")
	}

	for k, v := range msg.Header {
		email.Headers[k] = v
	}

	return email, nil
}
