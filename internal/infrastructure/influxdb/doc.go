// Package influxdb mirrors brewhouse telemetry into InfluxDB v2 for
// dashboarding. The SQLite bucket store remains authoritative; this
// mirror is optional and write-only, with batched non-blocking writes.
package influxdb
