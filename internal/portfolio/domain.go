package portfolio

// Table names of the portfolio collections.
const (
	TableProperties   = "properties"
	TableUnits        = "units"
	TableTenants      = "tenants"
	TableMaintenance  = "maintenance_requests"
	TableTransactions = "transactions"
	TableDocuments    = "documents"
)

// Collections lists every portfolio table.
var Collections = []string{TableProperties, TableUnits, TableTenants, TableMaintenance, TableTransactions, TableDocuments}

// Property is a managed building.
type Property struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Address         string   `json:"address"`
	City            string   `json:"city"`
	State           string   `json:"state"`
	Zip             string   `json:"zip"`
	PropertyType    string   `json:"property_type"`
	AcquisitionDate string   `json:"acquisition_date,omitempty"`
	PurchasePrice   float64  `json:"purchase_price"`
	CurrentValue    float64  `json:"current_value"`
	TotalUnits      int      `json:"total_units"`
	OccupiedUnits   int      `json:"occupied_units"`
	Amenities       []string `json:"amenities,omitempty"`
	Description     string   `json:"description,omitempty"`
}

// Unit is a rentable space within a property.
type Unit struct {
	ID              string  `json:"id"`
	PropertyID      string  `json:"property_id"`
	UnitNumber      string  `json:"unit_number"`
	FloorLevel      int     `json:"floor_level"`
	Bedrooms        int     `json:"bedrooms"`
	Bathrooms       float64 `json:"bathrooms"`
	SquareFeet      int     `json:"square_feet"`
	MonthlyRent     float64 `json:"monthly_rent"`
	SecurityDeposit float64 `json:"security_deposit"`
	IsOccupied      bool    `json:"is_occupied"`
	TenantID        *string `json:"tenant_id"`
	Status          string  `json:"status"`
}

// Tenant is a leaseholder.
type Tenant struct {
	ID           string  `json:"id"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	Email        string  `json:"email"`
	Phone        string  `json:"phone"`
	MoveInDate   string  `json:"move_in_date"`
	LeaseEndDate string  `json:"lease_end_date"`
	RentAmount   float64 `json:"rent_amount"`
	PropertyID   string  `json:"property_id"`
	UnitID       string  `json:"unit_id"`
	Status       string  `json:"status"`
	Notes        string  `json:"notes,omitempty"`
}

// FullName joins the tenant's names.
func (t Tenant) FullName() string {
	return t.FirstName + " " + t.LastName
}

// MaintenanceRequest is a work order against a unit.
type MaintenanceRequest struct {
	ID            string   `json:"id"`
	PropertyID    string   `json:"property_id"`
	UnitID        string   `json:"unit_id"`
	TenantID      *string  `json:"tenant_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Priority      string   `json:"priority"`
	Status        string   `json:"status"`
	AssignedTo    *string  `json:"assigned_to"`
	EstimatedCost *float64 `json:"estimated_cost"`
	RequestDate   string   `json:"request_date"`
}

// Transaction is an income or expense entry.
type Transaction struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	PropertyID  *string `json:"property_id"`
	Recurring   bool    `json:"recurring"`
}

// Document is a stored file record.
type Document struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	FileURL    string   `json:"file_url"`
	FileType   string   `json:"file_type"`
	FileSize   int64    `json:"file_size"`
	Category   string   `json:"category"`
	RelatedTo  string   `json:"related_to"`
	RelatedID  string   `json:"related_id"`
	UploadedBy string   `json:"uploaded_by"`
	UploadDate string   `json:"upload_date"`
	Tags       []string `json:"tags,omitempty"`
	IsArchived bool     `json:"is_archived"`
}

// Period selects the window of a financial summary.
type Period string

const (
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// FinancialSummary totals transactions over a period.
type FinancialSummary struct {
	Income    float64 `json:"income"`
	Expenses  float64 `json:"expenses"`
	NetIncome float64 `json:"net_income"`
	Period    Period  `json:"period"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
}

// Summary is the dashboard overview.
type Summary struct {
	TotalProperties      int     `json:"total_properties"`
	TotalUnits           int     `json:"total_units"`
	OccupiedUnits        int     `json:"occupied_units"`
	VacantUnits          int     `json:"vacant_units"`
	OccupancyRate        float64 `json:"occupancy_rate"`
	TotalTenants         int64   `json:"total_tenants"`
	PendingMaintenance   int64   `json:"pending_maintenance"`
	MonthlyRevenue       float64 `json:"monthly_revenue"`
	MonthlyExpenses      float64 `json:"monthly_expenses"`
	NetIncome            float64 `json:"net_income"`
	UpcomingLeasesEnding int64   `json:"upcoming_leases_ending"`
}
