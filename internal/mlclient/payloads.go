package mlclient

// Endpoint paths exposed by the model services.
const (
	PathPredict         = "/predict"
	PathGenerateSeating = "/generate-seating"
)

// SubjectPerformance is one subject row sent to the prediction model.
type SubjectPerformance struct {
	SubjectName string  `json:"subject_name"`
	SubjectID   string  `json:"subject_id"`
	Attendance  float64 `json:"attendance"`
	Marks       float64 `json:"marks"`
}

// PredictionRequest is the body of POST /predict.
type PredictionRequest struct {
	StudentID string               `json:"student_id"`
	Age       int                  `json:"age,omitempty"`
	Grade     string               `json:"grade"`
	Subjects  []SubjectPerformance `json:"subjects"`
}

// SubjectPrediction is a prediction row returned by the model.
type SubjectPrediction struct {
	Subject              string  `json:"subject"`
	CurrentPerformance   float64 `json:"current_performance"`
	CurrentAttendance    float64 `json:"current_attendance"`
	PredictedPerformance float64 `json:"predicted_performance"`
	PredictionTrend      string  `json:"prediction_trend"`
	Confidence           float64 `json:"confidence"`
	Recommendation       *string `json:"recommendation"`
}

// PredictionResponse is the body returned by POST /predict.
type PredictionResponse struct {
	Predictions []SubjectPrediction `json:"predictions"`
}

// SeatingStudent is one student sent to the seating model.
type SeatingStudent struct {
	StudentID    string  `json:"student_id"`
	Name         string  `json:"name"`
	AverageMarks float64 `json:"average_marks"`
	Grade        string  `json:"grade"`
	Section      string  `json:"section"`
}

// SeatingRequest is the body of POST /generate-seating.
type SeatingRequest struct {
	Grade       string           `json:"grade"`
	Section     string           `json:"section"`
	Students    []SeatingStudent `json:"students"`
	SeatsPerRow int              `json:"seats_per_row"`
	TotalRows   int              `json:"total_rows"`
}

// SeatCell is one seat in the returned grid. Empty seats are null.
type SeatCell struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name,omitempty"`
}

// SeatingResponse is the body returned by POST /generate-seating.
type SeatingResponse struct {
	SeatingArrangement [][]*SeatCell `json:"seating_arrangement"`
}
