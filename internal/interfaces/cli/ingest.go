package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/messaging/kafka"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

type ingestOptions struct {
	file   string
	source string
}

func newIngestCommand(root *RootOptions) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Queue patent documents for indexing",
		Long:  "Reads a JSON array of patent documents and publishes each one to the\ningestion topic.  The worker embeds and indexes them asynchronously.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "path to the JSON document file (required)")
	cmd.Flags().StringVar(&opts.source, "source", "manual", "document source label (e.g. kipris)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runIngest(cmd *cobra.Command, root *RootOptions, opts *ingestOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	log, err := newLogger(root)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(opts.file)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "read document file failed")
	}
	var docs []patent.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "document file must be a JSON array")
	}
	if len(docs) == 0 {
		return apperrors.NewValidationError("document file is empty")
	}

	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer producer.Close()

	ctx := cmd.Context()
	published, skipped := 0, 0
	now := time.Now().UTC()
	for _, doc := range docs {
		if doc.PublicationNumber == "" {
			skipped++
			continue
		}
		err := producer.PublishPatentDocument(ctx, kafka.PatentDocumentPayload{
			Document:   doc,
			Source:     opts.source,
			IngestedAt: now,
		})
		if err != nil {
			return err
		}
		published++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "queued %d documents (%d skipped without publication number)\n", published, skipped)
	return nil
}
