package database

import "time"

// JobScan é uma análise persistida.
type JobScan struct {
	ID          string     `gorm:"primaryKey;size:36"`
	InputType   string     `gorm:"size:8;not null"`
	SourceURL   *string    `gorm:"type:text"`
	Content     string     `gorm:"type:text;not null"`
	CompanyName *string    `gorm:"size:255"`
	JobTitle    *string    `gorm:"size:255"`
	RiskScore   int        `gorm:"not null"`
	Summary     string     `gorm:"type:text;not null"`
	ShareCopy   string     `gorm:"type:text"`
	Flags       []RiskFlag `gorm:"foreignKey:JobScanID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time  `gorm:"not null;index"`
}

// RiskFlag pertence a um JobScan.
type RiskFlag struct {
	ID        string `gorm:"primaryKey;size:36"`
	JobScanID string `gorm:"size:36;not null;index"`
	Severity  string `gorm:"size:16;not null"`
	Category  string `gorm:"size:32;not null"`
	Quote     string `gorm:"type:text"`
	Reality   string `gorm:"type:text"`
}
