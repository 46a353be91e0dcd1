package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Base model fields shared by all models
type Base struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an ID when none was provided
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// CropCategory classifies a block by its planting cycle
type CropCategory string

const (
	// CropCategoryPlantCrop represents a newly planted block
	CropCategoryPlantCrop CropCategory = "PC"
	// CropCategoryRatoonCrop represents a block in a regrowth cycle
	CropCategoryRatoonCrop CropCategory = "RC"
)

// Valid reports whether the category is one of the recognized values
func (c CropCategory) Valid() bool {
	return c == CropCategoryPlantCrop || c == CropCategoryRatoonCrop
}

// Section represents an administrative field section that owns blocks and plans
type Section struct {
	Base
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
	Code      string         `json:"code" gorm:"column:code;uniqueIndex"`
	Name      string         `json:"name" gorm:"column:name"`
}

// Vendor represents an external contractor that can be assigned to a plan
type Vendor struct {
	Base
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
	Name      string         `json:"name" gorm:"column:name"`
}

// Material represents a consumable input (fertilizer, herbicide, etc.)
type Material struct {
	Base
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
	Name          string         `json:"name" gorm:"column:name"`
	UnitOfMeasure string         `json:"unit_of_measure" gorm:"column:unit_of_measure"`
}

// ActivityType represents a kind of field work (spraying, weeding, fertilizing)
type ActivityType struct {
	Base
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`
	Name              string         `json:"name" gorm:"column:name"`
	RequiresMaterials bool           `json:"requires_materials" gorm:"column:requires_materials"`
}

// Stage represents a process stage an activity can be scoped to
type Stage struct {
	Base
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
	Name      string         `json:"name" gorm:"column:name"`
}

// TreatmentOption represents an alternative treatment variant for an activity
type TreatmentOption struct {
	Base
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
	Name      string         `json:"name" gorm:"column:name"`
}

// Block represents a fixed physical land parcel
type Block struct {
	Base
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
	SectionID    uuid.UUID      `json:"section_id" gorm:"column:section_id;type:uuid"`
	Section      *Section       `json:"-" gorm:"foreignKey:SectionID"`
	Name         string         `json:"name" gorm:"column:name"`
	CropCategory CropCategory   `json:"crop_category" gorm:"column:crop_category"`
	TotalArea    float64        `json:"total_area" gorm:"column:total_area"`
}

// DosageRule defines a per-area material requirement. Nil keys act as
// wildcards for stage and option; a nil category applies to all categories.
type DosageRule struct {
	Base
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
	ActivityTypeID uuid.UUID      `json:"activity_type_id" gorm:"column:activity_type_id;type:uuid;index"`
	ActivityType   *ActivityType  `json:"-" gorm:"foreignKey:ActivityTypeID"`
	StageID        *uuid.UUID     `json:"stage_id" gorm:"column:stage_id;type:uuid"`
	Stage          *Stage         `json:"-" gorm:"foreignKey:StageID"`
	OptionID       *uuid.UUID     `json:"option_id" gorm:"column:option_id;type:uuid"`
	Option         *TreatmentOption `json:"-" gorm:"foreignKey:OptionID"`
	CropCategory   *CropCategory  `json:"crop_category" gorm:"column:crop_category"`
	MaterialID     uuid.UUID      `json:"material_id" gorm:"column:material_id;type:uuid"`
	Material       *Material      `json:"material" gorm:"foreignKey:MaterialID"`
	DosePerArea    float64        `json:"dose_per_area" gorm:"column:dose_per_area"`
}

// PlanStatus defines the lifecycle status of an activity plan
type PlanStatus string

const (
	// PlanStatusPending represents a plan awaiting approval
	PlanStatusPending PlanStatus = "pending"
	// PlanStatusApproved represents an approved plan with no recorded work yet
	PlanStatusApproved PlanStatus = "approved"
	// PlanStatusRejected represents a rejected plan
	PlanStatusRejected PlanStatus = "rejected"
	// PlanStatusInProgress represents a plan with partial work recorded
	PlanStatusInProgress PlanStatus = "in_progress"
	// PlanStatusCompleted represents a plan whose blocks are all completed
	PlanStatusCompleted PlanStatus = "completed"
)

// Executable reports whether new execution events may target the plan
func (s PlanStatus) Executable() bool {
	return s == PlanStatusApproved || s == PlanStatusInProgress
}

// ActivityPlan is the root aggregate: a unit of planned work spanning
// one or more blocks for one activity type.
type ActivityPlan struct {
	Base
	SectionID       uuid.UUID        `json:"section_id" gorm:"column:section_id;type:uuid;index"`
	Section         *Section         `json:"section" gorm:"foreignKey:SectionID"`
	ActivityTypeID  uuid.UUID        `json:"activity_type_id" gorm:"column:activity_type_id;type:uuid;index"`
	ActivityType    *ActivityType    `json:"activity_type" gorm:"foreignKey:ActivityTypeID"`
	StageID         *uuid.UUID       `json:"stage_id" gorm:"column:stage_id;type:uuid"`
	Stage           *Stage           `json:"stage" gorm:"foreignKey:StageID"`
	OptionID        *uuid.UUID       `json:"option_id" gorm:"column:option_id;type:uuid"`
	Option          *TreatmentOption `json:"option" gorm:"foreignKey:OptionID"`
	VendorID        *uuid.UUID       `json:"vendor_id" gorm:"column:vendor_id;type:uuid"`
	Vendor          *Vendor          `json:"vendor" gorm:"foreignKey:VendorID"`
	PeriodStart     time.Time        `json:"period_start" gorm:"column:period_start"`
	PeriodEnd       time.Time        `json:"period_end" gorm:"column:period_end"`
	Status          PlanStatus       `json:"status" gorm:"column:status;index"`
	CreatedBy       uuid.UUID        `json:"created_by" gorm:"column:created_by;type:uuid"`
	ApprovedBy      *uuid.UUID       `json:"approved_by" gorm:"column:approved_by;type:uuid"`
	ApprovedAt      *time.Time       `json:"approved_at" gorm:"column:approved_at"`
	RejectionReason string           `json:"rejection_reason,omitempty" gorm:"column:rejection_reason"`
	BlockActivities []BlockActivity  `json:"block_activities" gorm:"foreignKey:PlanID"`
	PlannedMaterials []PlannedMaterial `json:"planned_materials" gorm:"foreignKey:PlanID"`
}

// BlockActivityStatus defines the progress status of a block allocation
type BlockActivityStatus string

const (
	// BlockActivityStatusPlanned represents an allocation with no work yet
	BlockActivityStatusPlanned BlockActivityStatus = "planned"
	// BlockActivityStatusInProgress represents a partially worked allocation
	BlockActivityStatusInProgress BlockActivityStatus = "in_progress"
	// BlockActivityStatusCompleted represents a fully worked allocation
	BlockActivityStatusCompleted BlockActivityStatus = "completed"
)

// BlockActivity binds one block to one plan and tracks area progress.
// CompletedArea only ever grows; RemainingArea is derived.
type BlockActivity struct {
	Base
	PlanID        uuid.UUID           `json:"plan_id" gorm:"column:plan_id;type:uuid;index"`
	Plan          *ActivityPlan       `json:"-" gorm:"foreignKey:PlanID"`
	BlockID       uuid.UUID           `json:"block_id" gorm:"column:block_id;type:uuid;index"`
	Block         *Block              `json:"block" gorm:"foreignKey:BlockID"`
	AllocatedArea float64             `json:"allocated_area" gorm:"column:allocated_area"`
	CompletedArea float64             `json:"completed_area" gorm:"column:completed_area"`
	Status        BlockActivityStatus `json:"status" gorm:"column:status"`
}

// RemainingArea returns the area still available for execution
func (b *BlockActivity) RemainingArea() float64 {
	return b.AllocatedArea - b.CompletedArea
}

// PlannedMaterial holds the per-material budget seeded at plan creation.
// AllocatedQuantity may exceed TotalQuantity; over-consumption is surfaced
// in summary views rather than blocked.
type PlannedMaterial struct {
	Base
	PlanID            uuid.UUID     `json:"plan_id" gorm:"column:plan_id;type:uuid;index"`
	Plan              *ActivityPlan `json:"-" gorm:"foreignKey:PlanID"`
	MaterialID        uuid.UUID     `json:"material_id" gorm:"column:material_id;type:uuid"`
	Material          *Material     `json:"material" gorm:"foreignKey:MaterialID"`
	TotalQuantity     float64       `json:"total_quantity" gorm:"column:total_quantity"`
	AllocatedQuantity float64       `json:"allocated_quantity" gorm:"column:allocated_quantity"`
}

// RemainingQuantity returns the unconsumed part of the budget
func (m *PlannedMaterial) RemainingQuantity() float64 {
	return m.TotalQuantity - m.AllocatedQuantity
}

// UsagePercentage returns the raw consumption ratio; values above 100
// indicate the budget has been exceeded
func (m *PlannedMaterial) UsagePercentage() float64 {
	if m.TotalQuantity == 0 {
		return 0
	}
	return m.AllocatedQuantity / m.TotalQuantity * 100
}

// ExecutionEvent is an immutable record of work performed on a date.
// Published marks it as delivered to the downstream reporting feed.
type ExecutionEvent struct {
	Base
	PlanID         uuid.UUID                `json:"plan_id" gorm:"column:plan_id;type:uuid;index"`
	Plan           *ActivityPlan            `json:"plan" gorm:"foreignKey:PlanID"`
	WorkDate       time.Time                `json:"work_date" gorm:"column:work_date;index"`
	WorkerCount    *int                     `json:"worker_count" gorm:"column:worker_count"`
	Notes          string                   `json:"notes" gorm:"column:notes;type:text"`
	RecordedBy     uuid.UUID                `json:"recorded_by" gorm:"column:recorded_by;type:uuid"`
	IdempotencyKey uuid.UUID                `json:"idempotency_key" gorm:"column:idempotency_key;type:uuid;uniqueIndex"`
	Published      bool                     `json:"published" gorm:"column:published"`
	PublishedAt    *time.Time               `json:"published_at" gorm:"column:published_at"`
	BlockDeltas    []ExecutionBlockDelta    `json:"block_deltas" gorm:"foreignKey:EventID"`
	MaterialUsages []ExecutionMaterialUsage `json:"material_usages" gorm:"foreignKey:EventID"`
}

// ExecutionBlockDelta records the area worked on one block in one event
type ExecutionBlockDelta struct {
	Base
	EventID         uuid.UUID       `json:"event_id" gorm:"column:event_id;type:uuid;index"`
	Event           *ExecutionEvent `json:"-" gorm:"foreignKey:EventID"`
	BlockActivityID uuid.UUID       `json:"block_activity_id" gorm:"column:block_activity_id;type:uuid;index"`
	BlockActivity   *BlockActivity  `json:"block_activity" gorm:"foreignKey:BlockActivityID"`
	AreaWorked      float64         `json:"area_worked" gorm:"column:area_worked"`
}

// TableName pins the plural form; the default naming strategy treats
// "delta" as already plural and would name the table execution_block_delta
func (ExecutionBlockDelta) TableName() string {
	return "execution_block_deltas"
}

// ExecutionMaterialUsage records the quantity of one material consumed
// by one event, derived from dosage rules
type ExecutionMaterialUsage struct {
	Base
	EventID      uuid.UUID       `json:"event_id" gorm:"column:event_id;type:uuid;index"`
	Event        *ExecutionEvent `json:"-" gorm:"foreignKey:EventID"`
	MaterialID   uuid.UUID       `json:"material_id" gorm:"column:material_id;type:uuid"`
	Material     *Material       `json:"material" gorm:"foreignKey:MaterialID"`
	QuantityUsed float64         `json:"quantity_used" gorm:"column:quantity_used"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Section{},
		&Vendor{},
		&Material{},
		&ActivityType{},
		&Stage{},
		&TreatmentOption{},
		&Block{},
		&DosageRule{},
		&ActivityPlan{},
		&BlockActivity{},
		&PlannedMaterial{},
		&ExecutionEvent{},
		&ExecutionBlockDelta{},
		&ExecutionMaterialUsage{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
