package model

import (
	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/messages"
)

// Alias per esporre tipi comuni ai servizi

type (
	TelemetryRecord        = messages.TelemetryRecord
	IrrigationEventMessage = messages.IrrigationEventMessage
	SampleMessage          = messages.SampleMessage
	Device                 = entities.Device
	Sector                 = entities.Sector
	PositionSample         = entities.PositionSample
	Rotation               = entities.Rotation
	SectorVisit            = entities.SectorVisit
	SectorState            = entities.SectorState
)
