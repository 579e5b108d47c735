package numbering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		name   string
		prefix string
		period string
		seq    int64
		width  int
		want   string
	}{
		{"monthly sor", "SOR", "202501", 3, 3, "SOR-202501-003"},
		{"yearly payment", "PAY", "2025", 12, 3, "PAY-2025-012"},
		{"no period", "DEF", "", 7, 3, "DEF-007"},
		{"wider than width", "SOR", "202501", 12345, 3, "SOR-202501-12345"},
		{"zero width", "X", "", 5, 0, "X-5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Format(tc.prefix, tc.period, tc.seq, tc.width))
		})
	}
}

func TestPolicy_KeyAndRender(t *testing.T) {
	at := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		docType string
		seq     int64
		key     string
		code    string
	}{
		{"sor", 3, "sor:202501", "SOR-202501-003"},
		{"payment", 1, "payment:2025", "PAY-2025-001"},
		{"order", 1, "order", "ORD000001"},
		{"certificate", 42, "certificate:2025", "CERT-2025-0042"},
		{"warranty_claim", 9, "warrantyClaim:2025", "WC-2025-009"},
		{"work_order", 100, "workOrder:2025", "WO-2025-100"},
		{"defect_code", 5, "defectCode", "DEF-005"},
		{"spare_part_request", 1, "sparePartRequest:2025", "SPR-2025-0001"},
		{"hsrp_request", 2, "hsrpRequest:2025", "HSRP-2025-0002"},
		{"rsa_request", 3, "rsaRequest:2025", "RSA-2025-0003"},
		{"die_plan", 4, "diePlan:2025", "DP-2025-0004"},
	}
	for _, tc := range cases {
		t.Run(tc.docType, func(t *testing.T) {
			p, ok := Lookup(tc.docType)
			require.True(t, ok)
			assert.Equal(t, tc.key, p.Key(at))
			assert.Equal(t, tc.code, p.Render(at, tc.seq))
		})
	}
}

func TestPolicy_MonthlyKeyRollsOver(t *testing.T) {
	p, _ := Lookup("sor")
	jan := time.Date(2025, time.January, 31, 23, 59, 0, 0, time.UTC)
	feb := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	assert.NotEqual(t, p.Key(jan), p.Key(feb))
	assert.Equal(t, "sor:202502", p.Key(feb))
}

func TestLookup_Unknown(t *testing.T) {
	_, ok := Lookup("invoice")
	assert.False(t, ok)
}

func TestPolicies_Sorted(t *testing.T) {
	ps := Policies()
	require.Len(t, ps, 11)
	for i := 1; i < len(ps); i++ {
		assert.Less(t, ps[i-1].DocType, ps[i].DocType)
	}
}
