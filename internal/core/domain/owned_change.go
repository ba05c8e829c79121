package domain

import "time"

type OwnedChangeStatus string

const (
	OwnedChangeStatusPending OwnedChangeStatus = "pending"
	OwnedChangeStatusSynced  OwnedChangeStatus = "synced"
	OwnedChangeStatusFailed  OwnedChangeStatus = "failed"
)

// OwnedChange is one key write forwarded to cloud persistence.
type OwnedChange struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	SetNumber       string            `json:"setNumber"`
	Key             string            `json:"key"`
	Quantity        int               `json:"quantity"`
	EnableCloudSync bool              `json:"enableCloudSync"`
	Attempt         int               `json:"attempt"`
	Status          OwnedChangeStatus `json:"status"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// OwnedWrite is a single store mutation produced by the resolver.
type OwnedWrite struct {
	Key      string `json:"key"`
	Previous int    `json:"previous"`
	Quantity int    `json:"quantity"`
}

// MissingPart is an export row for marketplaces.
type MissingPart struct {
	SetNumber       string `json:"setNumber"`
	PartID          string `json:"partId"`
	PartName        string `json:"partName"`
	ColorID         int    `json:"colorId"`
	ColorName       string `json:"colorName"`
	ElementID       string `json:"elementId,omitempty"`
	Minifig         bool   `json:"minifig,omitempty"`
	QuantityMissing int    `json:"quantityMissing"`
}
