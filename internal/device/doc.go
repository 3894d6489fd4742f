// Package device manages the registry of brewing and fermentation
// appliances: idempotent registration keyed on serial number, state and
// firmware reporting, and the per-device error log.
package device
