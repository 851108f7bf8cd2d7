// Package itinerary defines day-by-day trip plans and the deterministic cost
// checks run against them.
package itinerary

// Itinerary is a complete day-by-day plan for one destination.
type Itinerary struct {
	TripID                      string   `json:"trip_id" validate:"required"`
	DestinationName             string   `json:"destination_name" validate:"required"`
	TotalEstimatedCostPerPerson int      `json:"total_estimated_cost_per_person" validate:"gte=0"`
	Assumptions                 []string `json:"assumptions"`
	Days                        []Day    `json:"days" validate:"required,min=1,dive"`
	Sources                     []string `json:"sources"`
}

// Day holds the activities for one day, split by time block.
type Day struct {
	DayIndex  int        `json:"day_index" validate:"gte=1"`
	DateISO   string     `json:"date_iso,omitempty"`
	Morning   []Activity `json:"morning" validate:"dive"`
	Afternoon []Activity `json:"afternoon" validate:"dive"`
	Evening   []Activity `json:"evening" validate:"dive"`
}

// Activity is a single scheduled item. A nil cost means the estimate is
// missing, which is not the same as free.
type Activity struct {
	Title                  string   `json:"title" validate:"required"`
	Description            string   `json:"description"`
	NeighborhoodOrArea     string   `json:"neighborhood_or_area,omitempty"`
	EstimatedCostPerPerson *int     `json:"estimated_cost_per_person,omitempty" validate:"omitempty,gte=0"`
	DurationMinutes        *int     `json:"duration_minutes,omitempty" validate:"omitempty,gt=0"`
	Tips                   []string `json:"tips"`
}

// Cost returns the activity's estimate, treating a missing estimate as zero.
func (a Activity) Cost() int {
	if a.EstimatedCostPerPerson == nil {
		return 0
	}
	return *a.EstimatedCostPerPerson
}

// Blocks returns the day's activities in morning, afternoon, evening order.
func (d Day) Blocks() []Activity {
	out := make([]Activity, 0, len(d.Morning)+len(d.Afternoon)+len(d.Evening))
	out = append(out, d.Morning...)
	out = append(out, d.Afternoon...)
	return append(out, d.Evening...)
}

// Activities flattens every activity across every day.
func (it Itinerary) Activities() []Activity {
	var out []Activity
	for _, d := range it.Days {
		out = append(out, d.Blocks()...)
	}
	return out
}

// Clone returns a deep copy so callers can keep a snapshot that later stages
// cannot mutate.
func (it Itinerary) Clone() Itinerary {
	c := it
	c.Assumptions = append([]string(nil), it.Assumptions...)
	c.Sources = append([]string(nil), it.Sources...)
	c.Days = make([]Day, len(it.Days))
	for i, d := range it.Days {
		c.Days[i] = Day{
			DayIndex:  d.DayIndex,
			DateISO:   d.DateISO,
			Morning:   cloneActivities(d.Morning),
			Afternoon: cloneActivities(d.Afternoon),
			Evening:   cloneActivities(d.Evening),
		}
	}
	return c
}

func cloneActivities(in []Activity) []Activity {
	if in == nil {
		return nil
	}
	out := make([]Activity, len(in))
	for i, a := range in {
		out[i] = a
		out[i].Tips = append([]string(nil), a.Tips...)
		if a.EstimatedCostPerPerson != nil {
			v := *a.EstimatedCostPerPerson
			out[i].EstimatedCostPerPerson = &v
		}
		if a.DurationMinutes != nil {
			v := *a.DurationMinutes
			out[i].DurationMinutes = &v
		}
	}
	return out
}
