package adapter

import (
	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// Device is a device associated with the patient, typically an implant.
type Device struct {
	base
	status   coding.Concept
	name     string
	codeText string
	udi      string
}

// ParseDevice decodes and adapts a Device record.
func ParseDevice(data []byte) (*Device, error) {
	rec, err := decode[r4.Device](KindDevice, data)
	if err != nil {
		return nil, err
	}
	return NewDevice(rec)
}

// NewDevice adapts a Device record.
func NewDevice(rec *r4.Device) (*Device, error) {
	if rec == nil {
		return nil, nilRecord(KindDevice)
	}
	if err := checkIdentity(KindDevice, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	d := &Device{
		base:     base{id: rec.ID},
		status:   coding.DeviceStatus.BindCode(rec.Status),
		codeText: coding.FormatCodes(rec.Type),
		name:     deviceDisplayName(rec),
	}
	for _, u := range rec.UDICarrier {
		if u.DeviceIdentifier != "" {
			d.udi = u.DeviceIdentifier
			break
		}
	}
	return d, nil
}

// deviceDisplayName combines the type text with the device's own name:
// "Coronary stent (Xience Sierra)". Either half may be missing.
func deviceDisplayName(rec *r4.Device) string {
	typeName := oneLine(coding.Readable(rec.Type))
	var deviceName string
	for _, n := range rec.DeviceName {
		if n.Type == "user-friendly-name" && n.Name != "" {
			deviceName = oneLine(n.Name)
			break
		}
	}
	if deviceName == "" {
		for _, n := range rec.DeviceName {
			if n.Name != "" {
				deviceName = oneLine(n.Name)
				break
			}
		}
	}
	switch {
	case typeName != "" && deviceName != "" && typeName != deviceName:
		return typeName + " (" + deviceName + ")"
	case typeName != "":
		return typeName
	case deviceName != "":
		return deviceName
	}
	return "Unknown device"
}

func (d *Device) Kind() Kind { return KindDevice }

// Status returns the bound device status.
func (d *Device) Status() coding.Concept { return d.status }

// Name returns the display name of the device.
func (d *Device) Name() string { return d.name }

// UDI returns the device identifier part of the UDI, or "".
func (d *Device) UDI() string { return d.udi }

// IsImplanted reports whether the device is recorded as currently in place.
func (d *Device) IsImplanted() bool { return d.status.Is(coding.Active) }

// ImplantStatus states the implant status explicitly; a missing status reads "unknown".
func (d *Device) ImplantStatus() string {
	if d.status.IsZero() {
		return "unknown"
	}
	return d.status.Label()
}

// PromptText renders e.g. "Device: Coronary artery stent (SNOMED 705643001); implant status: currently implanted".
func (d *Device) PromptText() string {
	return fragment(named("Device", d.name, d.codeText),
		"implant status: "+d.ImplantStatus(),
		detail("UDI", d.udi),
	)
}
