package openapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Generator builds the OpenAPI 3.0 document for the booking API.
type Generator struct {
	version string
	prefix  string
}

// NewGenerator creates a generator whose paths are served under prefix,
// e.g. "/v1".
func NewGenerator(version, prefix string) *Generator {
	return &Generator{version: version, prefix: prefix}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	for p, item := range healthPaths() {
		paths[p] = item
	}
	for p, item := range appointmentPaths() {
		paths[p] = item
	}
	for p, item := range otpPaths() {
		paths[p] = item
	}
	for p, item := range notificationPaths() {
		paths[p] = item
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Apollo Hospitals Chennai Appointment Booking API",
			"version":     g.version,
			"description": "Book, look up, reschedule and cancel outpatient appointments.",
		},
		"servers": []map[string]string{
			{"url": g.prefix},
		},
		"tags": []map[string]string{
			{"name": "health"},
			{"name": "appointments"},
			{"name": "auth"},
			{"name": "notifications"},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": componentSchemas(),
		},
	}
}

func healthPaths() map[string]interface{} {
	return map[string]interface{}{
		"/health": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Liveness check",
				"operationId": "health",
				"tags":        []string{"health"},
				"responses": map[string]interface{}{
					"200": jsonResponse("Service is up", "HealthStatus"),
				},
			},
		},
		"/health/db": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Database connectivity check",
				"operationId": "healthDB",
				"tags":        []string{"health"},
				"responses": map[string]interface{}{
					"200": jsonResponse("Database reachable", "HealthStatus"),
					"503": jsonResponse("Database unreachable", "Error"),
				},
			},
		},
	}
}

func appointmentPaths() map[string]interface{} {
	idParam := pathParam("id", "Appointment number")
	validatedParam := map[string]interface{}{
		"name": "userValidated", "in": "query", "required": true,
		"description": "Whether the caller completed OTP verification",
		"schema":      map[string]string{"type": "boolean"},
	}

	return map[string]interface{}{
		"/appointments": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "List appointments",
				"operationId": "listAppointments",
				"tags":        []string{"appointments"},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "All appointments",
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{
									"type":  "array",
									"items": ref("Appointment"),
								},
							},
						},
					},
				},
			},
			"post": map[string]interface{}{
				"summary":     "Create an appointment",
				"description": "Replaces any earlier appointment held by the same patient.",
				"operationId": "createAppointment",
				"tags":        []string{"appointments"},
				"requestBody": jsonBody("AppointmentInput"),
				"responses": map[string]interface{}{
					"201": jsonResponse("Created", "Appointment"),
					"413": jsonResponse("Body too large", "Error"),
					"422": jsonResponse("Validation failed", "Error"),
				},
			},
		},
		"/appointments/{id}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Get an appointment",
				"operationId": "getAppointment",
				"tags":        []string{"appointments"},
				"parameters":  []map[string]interface{}{idParam},
				"responses": map[string]interface{}{
					"200": jsonResponse("Success", "Appointment"),
					"404": jsonResponse("Not found", "Error"),
				},
			},
			"put": map[string]interface{}{
				"summary":     "Replace an appointment",
				"operationId": "updateAppointment",
				"tags":        []string{"appointments"},
				"parameters":  []map[string]interface{}{idParam},
				"requestBody": jsonBody("AppointmentInput"),
				"responses": map[string]interface{}{
					"200": jsonResponse("Updated", "Appointment"),
					"404": jsonResponse("Not found", "Error"),
					"422": jsonResponse("Validation failed", "Error"),
				},
			},
			"patch": map[string]interface{}{
				"summary":     "Partially update an appointment",
				"operationId": "patchAppointment",
				"tags":        []string{"appointments"},
				"parameters":  []map[string]interface{}{idParam},
				"requestBody": jsonBody("PatchInput"),
				"responses": map[string]interface{}{
					"200": jsonResponse("Updated", "Appointment"),
					"404": jsonResponse("Not found", "Error"),
					"422": jsonResponse("Validation failed", "Error"),
				},
			},
		},
		"/appointments/availability": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Check slot availability for a date",
				"operationId": "getAvailability",
				"tags":        []string{"appointments"},
				"parameters": []map[string]interface{}{
					queryParam("appointmentDate", "Date in YYYY-MM-DD format", "date"),
				},
				"responses": map[string]interface{}{
					"200": jsonResponse("Availability", "Availability"),
					"422": jsonResponse("Invalid date", "Error"),
				},
			},
		},
		"/appointments/booking-details": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Look up a booking by appointment number",
				"operationId": "getBookingDetails",
				"tags":        []string{"appointments"},
				"parameters": []map[string]interface{}{
					queryParam("appointmentNumber", "Six-digit appointment number", ""),
				},
				"responses": map[string]interface{}{
					"200": jsonResponse("Booking details", "BookingDetails"),
					"404": jsonResponse("Not found", "Error"),
					"422": jsonResponse("Invalid appointment number", "Error"),
				},
			},
		},
		"/appointments/details": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Look up the active booking for a phone number",
				"operationId": "getDetailsByPhone",
				"tags":        []string{"appointments"},
				"parameters": []map[string]interface{}{
					queryParam("userPhoneNumber", "Phone number used at booking", ""),
				},
				"responses": map[string]interface{}{
					"200": jsonResponse("Booking details or {available:false}", "PhoneDetails"),
				},
			},
		},
		"/appointments/{id}/reschedule": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Check whether an appointment can be rescheduled",
				"operationId": "getRescheduleEligibility",
				"tags":        []string{"appointments"},
				"parameters":  []map[string]interface{}{idParam, validatedParam},
				"responses": map[string]interface{}{
					"200": jsonResponse("Eligibility", "RescheduleStatus"),
					"400": jsonResponse("User is not validated", "Error"),
					"404": jsonResponse("Not found", "Error"),
				},
			},
		},
		"/appointments/{id}/cancellation": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Check the cancellation status of an appointment",
				"operationId": "getCancellationStatus",
				"tags":        []string{"appointments"},
				"parameters":  []map[string]interface{}{idParam, validatedParam},
				"responses": map[string]interface{}{
					"200": jsonResponse("Cancellation status", "CancellationStatus"),
					"400": jsonResponse("User is not validated", "Error"),
					"404": jsonResponse("Not found", "Error"),
				},
			},
		},
	}
}

func otpPaths() map[string]interface{} {
	return map[string]interface{}{
		"/auth/send-otp": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Send a one-time password",
				"operationId": "sendOTP",
				"tags":        []string{"auth"},
				"requestBody": jsonBody("SendOTPRequest"),
				"responses": map[string]interface{}{
					"200": jsonResponse("OTP sent", "SendOTPResponse"),
					"413": jsonResponse("Body too large", "Error"),
					"422": jsonResponse("Validation failed", "Error"),
				},
			},
		},
	}
}

func notificationPaths() map[string]interface{} {
	out := make(map[string]interface{})
	for _, n := range []struct{ kind, schema string }{
		{"booking", "BookingSMSRequest"},
		{"cancellation", "CancellationSMSRequest"},
		{"reschedule", "RescheduleSMSRequest"},
	} {
		out["/notifications/sms/"+n.kind] = map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Send the " + n.kind + " SMS",
				"operationId": "send" + n.schema[:len(n.schema)-len("Request")],
				"tags":        []string{"notifications"},
				"requestBody": jsonBody(n.schema),
				"responses": map[string]interface{}{
					"200": jsonResponse("SMS sent", "SMSResponse"),
					"400": jsonResponse("Malformed body", "Error"),
					"413": jsonResponse("Body too large", "Error"),
					"502": jsonResponse("SMS delivery failed", "Error"),
				},
			},
		}
	}
	return out
}

func componentSchemas() map[string]interface{} {
	str := map[string]string{"type": "string"}
	boolean := map[string]string{"type": "boolean"}
	date := map[string]string{"type": "string", "format": "date"}
	clock := map[string]string{"type": "string", "example": "10:00:00"}
	dateTime := map[string]string{"type": "string", "format": "date-time"}

	smsProps := func(extra map[string]interface{}) map[string]interface{} {
		props := map[string]interface{}{
			"appointmentNumber": str,
			"appointmentDate":   date,
			"appointmentTime":   clock,
			"userPhoneNumber":   str,
			"name":              str,
		}
		for k, v := range extra {
			props[k] = v
		}
		return object(props)
	}

	return map[string]interface{}{
		"Error": object(map[string]interface{}{"message": str}),
		"HealthStatus": object(map[string]interface{}{
			"status": str,
		}),
		"Appointment": object(map[string]interface{}{
			"appointmentId":   str,
			"patientId":       str,
			"name":            str,
			"date":            date,
			"time":            clock,
			"department":      str,
			"doctorName":      str,
			"userPhoneNumber": str,
			"isCancelled":     boolean,
			"created_at":      dateTime,
			"updated_at":      dateTime,
		}),
		"AppointmentInput": required(object(map[string]interface{}{
			"patientId":       str,
			"name":            str,
			"date":            date,
			"time":            clock,
			"department":      str,
			"doctorName":      str,
			"userPhoneNumber": str,
		}), "patientId", "name", "date", "time", "department", "doctorName"),
		"PatchInput": object(map[string]interface{}{
			"patientId":       str,
			"name":            str,
			"date":            date,
			"time":            clock,
			"department":      str,
			"doctorName":      str,
			"userPhoneNumber": str,
		}),
		"Availability": object(map[string]interface{}{
			"slotAvailable":     boolean,
			"nextAvailableSlot": str,
			"doctorName":        str,
		}),
		"BookingDetails": object(map[string]interface{}{
			"appointmentNumber": str,
			"appointmentDate":   date,
			"appointmentTime":   clock,
			"userPhoneNumber":   str,
			"name":              str,
		}),
		"PhoneDetails": required(object(map[string]interface{}{
			"available":         boolean,
			"appointmentNumber": str,
			"appointmentDate":   date,
			"appointmentTime":   clock,
			"name":              str,
			"department":        str,
			"doctorName":        str,
		}), "available"),
		"RescheduleStatus":   object(map[string]interface{}{"rescheduleAvailable": boolean}),
		"CancellationStatus": object(map[string]interface{}{"appointmentCancelled": boolean}),
		"SendOTPRequest":     required(object(map[string]interface{}{"userPhoneNumber": str}), "userPhoneNumber"),
		"SendOTPResponse":    object(map[string]interface{}{"sentOtp": str}),
		"BookingSMSRequest": smsProps(map[string]interface{}{
			"department": str,
			"doctorName": str,
		}),
		"CancellationSMSRequest": smsProps(nil),
		"RescheduleSMSRequest": smsProps(map[string]interface{}{
			"newAppointmentDate": date,
			"newAppointmentTime": clock,
		}),
		"SMSResponse": object(map[string]interface{}{"smsSent": boolean}),
	}
}

func object(props map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": props}
}

func required(schema map[string]interface{}, fields ...string) map[string]interface{} {
	schema["required"] = fields
	return schema
}

func ref(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

func jsonResponse(description, schema string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref(schema)},
		},
	}
}

func jsonBody(schema string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref(schema)},
		},
	}
}

func pathParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name": name, "in": "path", "required": true,
		"description": description,
		"schema":      map[string]string{"type": "string"},
	}
}

func queryParam(name, description, format string) map[string]interface{} {
	schema := map[string]string{"type": "string"}
	if format != "" {
		schema["format"] = format
	}
	return map[string]interface{}{
		"name": name, "in": "query", "required": true,
		"description": description,
		"schema":      schema,
	}
}

// RegisterRoutes serves the document at /openapi.json with Swagger UI at
// /docs and ReDoc at /redoc.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	specURL := g.prefix + "/openapi.json"
	swagger := fmt.Sprintf(swaggerUIHTML, specURL)
	redoc := fmt.Sprintf(redocHTML, specURL)

	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		c.Response().Header().Set("Content-Security-Policy", swaggerCSP)
		return c.HTML(http.StatusOK, swagger)
	})
	apiGroup.GET("/redoc", func(c echo.Context) error {
		c.Response().Header().Set("Content-Security-Policy", redocCSP)
		return c.HTML(http.StatusOK, redoc)
	})
}

// The API-wide policy forbids all subresources; the documentation pages need
// their CDN bundles and inline bootstrap.
const (
	swaggerCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com; " +
		"style-src 'self' 'unsafe-inline' https://unpkg.com; img-src 'self' data:; frame-ancestors 'none'"
	redocCSP = "default-src 'self'; script-src 'self' https://cdn.redoc.ly; worker-src blob:; " +
		"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; font-src https://fonts.gstatic.com; " +
		"img-src 'self' data: https://cdn.redoc.ly; frame-ancestors 'none'"
)

// ── Documentation pages ─────────────────────────────────────────────────

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Appointment Booking API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "%s",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [SwaggerUIBundle.presets.apis],
      layout: "BaseLayout"
    });
  </script>
</body>
</html>`

const redocHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Appointment Booking API - ReDoc</title>
  <style>body { margin: 0; padding: 0; }</style>
</head>
<body>
  <redoc spec-url="%s"></redoc>
  <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
</body>
</html>`
