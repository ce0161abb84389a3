package model

type BenefitType string

const (
	BenefitVIP         BenefitType = "VIP"
	BenefitDiscount    BenefitType = "DISCOUNT"
	BenefitConsumption BenefitType = "CONSUMPTION"
)

type GenderScope string

const (
	GenderMale   GenderScope = "M"
	GenderFemale GenderScope = "F"
	GenderUnisex GenderScope = "Unisex"
)

// GuestListRule 名單優惠規則；Deadline 為 "HH:MM"，nil 表示整晚有效
type GuestListRule struct {
	ID          string      `json:"id" db:"id" yaml:"id"`
	EventID     string      `json:"event_id" db:"event_id" yaml:"-"`
	BenefitType BenefitType `json:"benefit_type" db:"benefit_type" yaml:"benefit_type"`
	GenderScope GenderScope `json:"gender_scope" db:"gender_scope" yaml:"gender_scope"`
	Area        string      `json:"area" db:"area" yaml:"area"`
	Value       float64     `json:"value" db:"value" yaml:"value"`
	Deadline    *string     `json:"deadline,omitempty" db:"deadline" yaml:"deadline"`
}

type RuleStatus string

const (
	RuleActive  RuleStatus = "ACTIVE"
	RuleExpired RuleStatus = "EXPIRED"
)

type RuleView struct {
	GuestListRule
	Status RuleStatus `json:"status"`
}
