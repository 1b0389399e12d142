package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/pkg/money"
	"github.com/ignite/creatorhub/internal/service/escrow"
)

// ErrExportDisabled is returned when no statement bucket is configured.
var ErrExportDisabled = apperr.New(apperr.KindConflict, "statement_export_disabled", "statement export is not configured")

// ObjectPutter is the subset of *s3.Client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ObjectPresigner is the subset of *s3.PresignClient used for download links.
type ObjectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// StatementSource produces the brand's ledger history with running balances.
type StatementSource interface {
	Statement(ctx context.Context, brandID string) ([]escrow.LedgerRow, error)
}

// StatementConfig locates exported statements.
type StatementConfig struct {
	Bucket string
	Prefix string
	URLTTL time.Duration
}

// StatementExporter writes ledger statements as CSV to S3.
type StatementExporter struct {
	source    StatementSource
	client    ObjectPutter
	presigner ObjectPresigner
	cfg       StatementConfig
	now       func() time.Time
}

// Export is an uploaded statement.
type Export struct {
	Key       string    `json:"key"`
	Rows      int       `json:"rows"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewStatementExporter creates an exporter. A zero URLTTL means 15 minutes.
func NewStatementExporter(source StatementSource, client ObjectPutter, presigner ObjectPresigner, cfg StatementConfig) *StatementExporter {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}
	return &StatementExporter{
		source:    source,
		client:    client,
		presigner: presigner,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewS3StatementExporter wires the exporter to an S3 client.
func NewS3StatementExporter(source StatementSource, client *s3.Client, cfg StatementConfig) *StatementExporter {
	return NewStatementExporter(source, client, s3.NewPresignClient(client), cfg)
}

var statementHeader = []string{
	"date", "entry_id", "type", "status", "campaign_id", "campaign_name",
	"milestone_id", "description", "amount", "running_balance",
}

// WriteStatementCSV renders rows oldest first, amounts with two decimals.
func WriteStatementCSV(buf *bytes.Buffer, rows []escrow.LedgerRow) error {
	w := csv.NewWriter(buf)
	if err := w.Write(statementHeader); err != nil {
		return err
	}
	for _, r := range rows {
		milestone := ""
		if r.MilestoneID != nil {
			milestone = *r.MilestoneID
		}
		if err := w.Write([]string{
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.ID,
			string(r.Type),
			string(r.Status),
			r.CampaignID,
			r.CampaignName,
			milestone,
			r.Description,
			money.Format(r.SignedAmount()),
			money.Format(r.RunningBalance),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Export uploads the brand's current statement and returns a presigned
// download URL.
func (e *StatementExporter) Export(ctx context.Context, brandID string) (*Export, error) {
	if e.cfg.Bucket == "" || e.client == nil {
		return nil, ErrExportDisabled
	}
	rows, err := e.source.Statement(ctx, brandID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteStatementCSV(&buf, rows); err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}

	now := e.now()
	key := fmt.Sprintf("%sstatements/%s/%s.csv", e.cfg.Prefix, brandID, now.Format("20060102T150405Z"))
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(e.cfg.Bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(buf.Bytes()),
		ContentType:        aws.String("text/csv"),
		ContentDisposition: aws.String(fmt.Sprintf(`attachment; filename="statement-%s.csv"`, now.Format("2006-01-02"))),
		Metadata: map[string]string{
			"brand_id":     brandID,
			"rows":         fmt.Sprintf("%d", len(rows)),
			"generated_at": now.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGateway, "statement_upload_failed", "could not store statement", err)
	}

	req, err := e.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(e.cfg.URLTTL))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGateway, "statement_presign_failed", "could not sign statement link", err)
	}

	logger.Info("statement exported", "brand_id", brandID, "key", key, "rows", len(rows), "bytes", buf.Len())
	return &Export{Key: key, Rows: len(rows), URL: req.URL, ExpiresAt: now.Add(e.cfg.URLTTL)}, nil
}
