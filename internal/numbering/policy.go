package numbering

import (
	"sort"
	"time"
)

// カウンタをリセットする単位
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeYearly  Scope = "yearly"
	ScopeMonthly Scope = "monthly"
)

// Policy は文書種別ごとの採番ルール
type Policy struct {
	DocType   string `json:"doc_type"`
	Prefix    string `json:"prefix"`
	Scope     Scope  `json:"scope"`
	Width     int    `json:"width"`
	Separator string `json:"separator"`
	KeyName   string `json:"key_name"`
}

func (p Policy) period(t time.Time) string {
	switch p.Scope {
	case ScopeYearly:
		return t.Format("2006")
	case ScopeMonthly:
		return t.Format("200601")
	}
	return ""
}

// Key はカウンタのキー。tは設定したタイムゾーンに変換済みであること。
func (p Policy) Key(t time.Time) string {
	if per := p.period(t); per != "" {
		return p.KeyName + ":" + per
	}
	return p.KeyName
}

// Render はseqを最終的な番号にする
func (p Policy) Render(t time.Time, seq int64) string {
	if p.Separator == "-" {
		return Format(p.Prefix, p.period(t), seq, p.Width)
	}
	return join(p.Separator, p.Prefix, p.period(t), pad(seq, p.Width))
}

var builtin = map[string]Policy{
	"sor":                {DocType: "sor", Prefix: "SOR", Scope: ScopeMonthly, Width: 3, Separator: "-", KeyName: "sor"},
	"payment":            {DocType: "payment", Prefix: "PAY", Scope: ScopeYearly, Width: 3, Separator: "-", KeyName: "payment"},
	"order":              {DocType: "order", Prefix: "ORD", Scope: ScopeGlobal, Width: 6, Separator: "", KeyName: "order"},
	"certificate":        {DocType: "certificate", Prefix: "CERT", Scope: ScopeYearly, Width: 4, Separator: "-", KeyName: "certificate"},
	"warranty_claim":     {DocType: "warranty_claim", Prefix: "WC", Scope: ScopeYearly, Width: 3, Separator: "-", KeyName: "warrantyClaim"},
	"work_order":         {DocType: "work_order", Prefix: "WO", Scope: ScopeYearly, Width: 3, Separator: "-", KeyName: "workOrder"},
	"defect_code":        {DocType: "defect_code", Prefix: "DEF", Scope: ScopeGlobal, Width: 3, Separator: "-", KeyName: "defectCode"},
	"spare_part_request": {DocType: "spare_part_request", Prefix: "SPR", Scope: ScopeYearly, Width: 4, Separator: "-", KeyName: "sparePartRequest"},
	"hsrp_request":       {DocType: "hsrp_request", Prefix: "HSRP", Scope: ScopeYearly, Width: 4, Separator: "-", KeyName: "hsrpRequest"},
	"rsa_request":        {DocType: "rsa_request", Prefix: "RSA", Scope: ScopeYearly, Width: 4, Separator: "-", KeyName: "rsaRequest"},
	"die_plan":           {DocType: "die_plan", Prefix: "DP", Scope: ScopeYearly, Width: 4, Separator: "-", KeyName: "diePlan"},
}

func Lookup(docType string) (Policy, bool) {
	p, ok := builtin[docType]
	return p, ok
}

// Policies はDocType順
func Policies() []Policy {
	out := make([]Policy, 0, len(builtin))
	for _, p := range builtin {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocType < out[j].DocType })
	return out
}

