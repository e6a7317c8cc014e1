package workflow

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("warehouse-backend")
