package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/service/escrow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLiftSummary(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	test := &domain.LiftTest{
		Name:     "Spring geo test",
		TestType: domain.LiftGeographic,
		Status:   domain.LiftCompleted,
		Groups: []domain.LiftTestGroup{
			{GroupType: domain.GroupTest, Conversions: 150},
			{GroupType: domain.GroupControl, Conversions: 100},
		},
		Result: &domain.LiftTestResult{
			LiftPercentage:        50,
			ConfidenceLower:       17.2,
			ConfidenceUpper:       82.8,
			PValue:                0.0012,
			TestSampleSize:        1000,
			ControlSampleSize:     1000,
			TestConversionRate:    0.15,
			ControlConversionRate: 0.10,
			IncrementalRevenue:    dec("2450.5"),
			Significance:          domain.HighlySignificant,
			Interpretation:        "Strong evidence of positive lift",
		},
	}
	out, err := r.LiftSummary(test)
	require.NoError(t, err)

	assert.Contains(t, out, `Lift test "Spring geo test" (geographic, completed)`)
	assert.Contains(t, out, "Test group: 150 conversions from 1000 (15.00%)")
	assert.Contains(t, out, "Control group: 100 conversions from 1000 (10.00%)")
	assert.Contains(t, out, "Lift: +50.0% (+17.2% to +82.8% 95% CI), p = 0.0012")
	assert.Contains(t, out, "Incremental revenue: 2450.50")
	assert.Contains(t, out, "Significance: highly significant")
	assert.Contains(t, out, "Strong evidence of positive lift")
}

func TestLiftSummaryWithoutResult(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.LiftSummary(&domain.LiftTest{Name: "Split", TestType: domain.LiftRandomSplit, Status: domain.LiftDraft})
	require.NoError(t, err)
	assert.Contains(t, out, "(random split, draft)")
	assert.Contains(t, out, "No results calculated yet.")
}

func TestAttributionSummary(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	coupon := "JANE10"
	b := &domain.TrackingBundle{AffiliateCode: "JANE1A2B", CouponCode: &coupon}
	res := &domain.AttributionResult{
		TotalClicks:       400,
		TotalConversions:  20,
		TotalRevenue:      dec("1200"),
		CreatorCost:       dec("500"),
		ConversionRate:    dec("5"),
		ROAS:              dec("2.4"),
		CostPerConversion: dec("25"),
		AverageOrderValue: dec("60"),
	}
	out, err := r.AttributionSummary(b, res)
	require.NoError(t, err)

	assert.Contains(t, out, "Attribution for JANE1A2B / coupon JANE10")
	assert.Contains(t, out, "Conversions: 20 (5.00% of clicks)")
	assert.Contains(t, out, "Revenue: 1200.00 against creator cost 500.00")
	assert.Contains(t, out, "ROAS: 2.40x, cost per conversion 25.00")

	out, err = r.AttributionSummary(&domain.TrackingBundle{AffiliateCode: "NEW00001"}, &domain.AttributionResult{})
	require.NoError(t, err)
	assert.NotContains(t, out, "coupon")
	assert.NotContains(t, out, "cost per conversion")
}

type stubStatement struct {
	rows []escrow.LedgerRow
	err  error
}

func (s stubStatement) Statement(context.Context, string) ([]escrow.LedgerRow, error) {
	return s.rows, s.err
}

type fakeS3 struct {
	put     *s3.PutObjectInput
	body    []byte
	putErr  error
	expires time.Duration
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.put = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.amazonaws.com/" + *in.Key + "?X-Amz-Signature=abc", Method: "GET"}, nil
}

func statementRows() []escrow.LedgerRow {
	milestone := "m1"
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return []escrow.LedgerRow{
		{
			EscrowLedgerEntry: domain.EscrowLedgerEntry{ID: "e1", CampaignID: "c1", Type: domain.LedgerFunding, Amount: dec("2000"), Status: domain.LedgerCompleted, Description: "Funding for Launch", CreatedAt: t0},
			CampaignName:      "Launch",
			RunningBalance:    dec("2000"),
		},
		{
			EscrowLedgerEntry: domain.EscrowLedgerEntry{ID: "e2", CampaignID: "c1", Type: domain.LedgerRelease, Amount: dec("500"), MilestoneID: &milestone, Status: domain.LedgerCompleted, Description: "Release, \"m1\"", CreatedAt: t0.Add(time.Hour)},
			CampaignName:      "Launch",
			RunningBalance:    dec("1500"),
		},
	}
}

func TestWriteStatementCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStatementCSV(&buf, statementRows()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, statementHeader, records[0])
	assert.Equal(t, []string{"2026-03-01T09:00:00Z", "e1", "funding", "completed", "c1", "Launch", "", "Funding for Launch", "2000.00", "2000.00"}, records[1])
	assert.Equal(t, "m1", records[2][6])
	assert.Equal(t, `Release, "m1"`, records[2][7])
	assert.Equal(t, "-500.00", records[2][8])
	assert.Equal(t, "1500.00", records[2][9])
}

func TestExportUploadsAndSigns(t *testing.T) {
	fake := &fakeS3{}
	e := NewStatementExporter(stubStatement{rows: statementRows()}, fake, fake, StatementConfig{Bucket: "ledger-exports", Prefix: "prod/", URLTTL: time.Hour})
	e.now = func() time.Time { return time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC) }

	exp, err := e.Export(context.Background(), "brand-1")
	require.NoError(t, err)

	assert.Equal(t, "prod/statements/brand-1/20260302T083000Z.csv", exp.Key)
	assert.Equal(t, 2, exp.Rows)
	assert.Contains(t, exp.URL, "X-Amz-Signature")
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), exp.ExpiresAt)
	assert.Equal(t, time.Hour, fake.expires)

	require.NotNil(t, fake.put)
	assert.Equal(t, "ledger-exports", *fake.put.Bucket)
	assert.Equal(t, "text/csv", *fake.put.ContentType)
	assert.Equal(t, "brand-1", fake.put.Metadata["brand_id"])
	assert.Contains(t, string(fake.body), "running_balance")
}

func TestExportErrors(t *testing.T) {
	fake := &fakeS3{}
	_, err := NewStatementExporter(stubStatement{}, fake, fake, StatementConfig{}).Export(context.Background(), "b")
	assert.ErrorIs(t, err, ErrExportDisabled)

	fake.putErr = errors.New("access denied")
	_, err = NewStatementExporter(stubStatement{rows: statementRows()}, fake, fake, StatementConfig{Bucket: "x"}).Export(context.Background(), "b")
	require.Error(t, err)
	assert.Equal(t, apperr.KindGateway, apperr.KindOf(err))
}
