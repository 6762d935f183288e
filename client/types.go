package client

import "time"

// Complaint is the wire form of a complaint or task. IDs are strings so
// offline records can carry local ids.
type Complaint struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	LocationText   string          `json:"locationText"`
	Town           string          `json:"town"`
	Coords         []float64       `json:"coords,omitempty"`
	Category       string          `json:"category"`
	Status         string          `json:"status"`
	Remarks        string          `json:"remarks"`
	ProofName      string          `json:"proofName"`
	CreatedBy      string          `json:"createdBy"`
	Reporter       *Reporter       `json:"reporter,omitempty"`
	AssignedTo     *string         `json:"assignedTo"`
	Upvotes        int             `json:"upvotes"`
	Priority       string          `json:"priority,omitempty"`
	DueDate        *time.Time      `json:"dueDate,omitempty"`
	EstimatedHours float64         `json:"estimatedHours"`
	ActualHours    float64         `json:"actualHours"`
	TargetLocation *TargetLocation `json:"targetLocation,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Reporter is set on tasks: who filed the complaint and how to reach them.
type Reporter struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type TargetLocation struct {
	Address string    `json:"address"`
	Coords  []float64 `json:"coords,omitempty"`
}

// NewComplaint is the body of POST /api/complaints.
type NewComplaint struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	LocationText string    `json:"locationText"`
	Town         string    `json:"town"`
	Coords       []float64 `json:"coords,omitempty"`
	Category     string    `json:"category,omitempty"`
}

type RegisterInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role,omitempty"`
	AdminKey   string `json:"adminKey,omitempty"`
	Town       string `json:"town,omitempty"`
	EmpID      string `json:"empId,omitempty"`
	Department string `json:"department,omitempty"`
}

type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Town       string `json:"town"`
	EmpID      string `json:"empId,omitempty"`
	Department string `json:"department,omitempty"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// TaskStatusUpdate is the body of PUT /api/employee/tasks/:id/status.
type TaskStatusUpdate struct {
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	ActualHours *float64  `json:"actualHours,omitempty"`
	Location    *Location `json:"location,omitempty"`
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type TaskStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
}

type Bucket struct {
	ID    string `json:"_id"`
	Count int64  `json:"count"`
}
