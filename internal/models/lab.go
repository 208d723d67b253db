package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Lab is the read-mostly catalog entity an attempt is taken against.
// Catalog CRUD lives in the content service; this service only reads labs
// and their answer key.
type Lab struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200"`
	Description *string `json:"description" gorm:"type:text"`
	Species     *string `json:"species" gorm:"size:100"`

	// Scoring configuration
	MaxPoints          float64 `json:"max_points" gorm:"not null;default:100"`
	HintPenaltyPercent float64 `json:"hint_penalty_percent" gorm:"not null;default:10"`

	Published bool   `json:"published" gorm:"default:false;index"`
	CreatedBy string `json:"created_by" gorm:"size:255;index"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Structures []Structure `json:"structures" gorm:"foreignKey:LabID"`
}

func (Lab) TableName() string {
	return "labs"
}

// Structure is one identifiable anatomical item with its answer key.
type Structure struct {
	ID    uint `json:"id" gorm:"primaryKey"`
	LabID uint `json:"lab_id" gorm:"not null;index"`

	// Answer key
	Name      string         `json:"name" gorm:"not null;size:200"`
	LatinName *string        `json:"latin_name" gorm:"size:200"`
	Aliases   datatypes.JSON `json:"aliases" gorm:"type:jsonb"` // accepted alternate spellings, string array
	Points    float64        `json:"points" gorm:"not null;default:1"`

	// Presentation metadata used by the canvas UI, opaque to grading
	RegionX *float64 `json:"region_x"`
	RegionY *float64 `json:"region_y"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Structure) TableName() string {
	return "structures"
}
