// Package triage provides the business boundary for fbtriage's feedback triage system.
// It defines the Baseline (keyword rules) and Remote (LLM) classifiers, the Engine
// that runs both over a batch and compares them, the Service (batch lifecycle,
// async dispatch), the Store interface, and the export/table projections.
package triage
