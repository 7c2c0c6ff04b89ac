package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/usecases"
)

func locationMap(l domain.Location) map[string]interface{} {
	m := map[string]interface{}{
		"id":         l.ID,
		"name":       l.DisplayName(),
		"category":   l.Category,
		"categories": l.CategorySet(),
		"address":    l.Address,
		"phone":      l.Phone,
		"website":    l.Website,
	}
	if p, ok := l.Point(); ok {
		m["lat"] = p.Lat
		m["lng"] = p.Lng
	}
	attrs := make([]string, 0, len(l.Attributes))
	for k, v := range l.Attributes {
		if v {
			attrs = append(attrs, k)
		}
	}
	m["attributes"] = attrs
	return m
}

func tripMap(p *usecases.TripPlanner) map[string]interface{} {
	v := tripView(p)
	stops := make([]map[string]interface{}, len(v.Stops))
	for i, s := range v.Stops {
		stops[i] = map[string]interface{}{
			"id":       s.ID,
			"order":    s.Order,
			"location": locationMap(s.Location),
		}
	}
	m := map[string]interface{}{
		"session":                v.Session,
		"status":                 string(v.Status),
		"stops":                  stops,
		"is_optimized":           v.IsOptimized,
		"trip_mode":              v.TripMode,
		"share_url":              v.ShareURL,
		"total_distance_meters":  v.TotalDistanceMeters,
		"total_duration_seconds": v.TotalDurationSeconds,
	}
	if v.Error != nil {
		m["error"] = map[string]interface{}{
			"kind":        string(v.Error.Kind),
			"code":        v.Error.Code,
			"message":     v.Error.Message,
			"recoverable": v.Error.Recoverable,
		}
	}
	return m
}

// buildSchema creates the GraphQL schema wired to the location and session services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	locationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Location",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"name":       &graphql.Field{Type: graphql.String},
			"lat":        &graphql.Field{Type: graphql.Float},
			"lng":        &graphql.Field{Type: graphql.Float},
			"category":   &graphql.Field{Type: graphql.String},
			"categories": &graphql.Field{Type: graphql.NewList(graphql.String)},
			"attributes": &graphql.Field{Type: graphql.NewList(graphql.String)},
			"address":    &graphql.Field{Type: graphql.String},
			"phone":      &graphql.Field{Type: graphql.String},
			"website":    &graphql.Field{Type: graphql.String},
			"distance":   &graphql.Field{Type: graphql.Float, Description: "Meters from the search center"},
		},
	})

	tripErrorType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TripError",
		Fields: graphql.Fields{
			"kind":        &graphql.Field{Type: graphql.String},
			"code":        &graphql.Field{Type: graphql.String},
			"message":     &graphql.Field{Type: graphql.String},
			"recoverable": &graphql.Field{Type: graphql.Boolean},
		},
	})

	stopType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TripStop",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.String},
			"order":    &graphql.Field{Type: graphql.Int},
			"location": &graphql.Field{Type: locationType},
		},
	})

	tripType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Trip",
		Fields: graphql.Fields{
			"session":                &graphql.Field{Type: graphql.String},
			"status":                 &graphql.Field{Type: graphql.String},
			"stops":                  &graphql.Field{Type: graphql.NewList(stopType)},
			"is_optimized":           &graphql.Field{Type: graphql.Boolean},
			"trip_mode":              &graphql.Field{Type: graphql.Boolean},
			"share_url":              &graphql.Field{Type: graphql.String},
			"total_distance_meters":  &graphql.Field{Type: graphql.Float},
			"total_duration_seconds": &graphql.Field{Type: graphql.Float},
			"error":                  &graphql.Field{Type: tripErrorType},
		},
	})

	sessionArg := &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"locations": &graphql.Field{
				Type:        graphql.NewList(locationType),
				Description: "Filter the location pool, nearest first when a center is given",
				Args: graphql.FieldConfigArgument{
					"lat":        &graphql.ArgumentConfig{Type: graphql.Float},
					"lng":        &graphql.ArgumentConfig{Type: graphql.Float},
					"radius":     &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
					"categories": &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
					"attributes": &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
					"limit":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					criteria := domain.FilterCriteria{RadiusMiles: p.Args["radius"].(float64)}
					if cats, ok := p.Args["categories"].([]interface{}); ok {
						for _, c := range cats {
							if s, ok := c.(string); ok {
								criteria.Categories = append(criteria.Categories, s)
							}
						}
					}
					if attrs, ok := p.Args["attributes"].([]interface{}); ok {
						criteria.AttributeFilters = make(map[string]bool, len(attrs))
						for _, a := range attrs {
							if s, ok := a.(string); ok {
								criteria.AttributeFilters[s] = true
							}
						}
					}
					var center *domain.SearchCenter
					lat, hasLat := p.Args["lat"].(float64)
					lng, hasLng := p.Args["lng"].(float64)
					if hasLat && hasLng {
						center = &domain.SearchCenter{Lat: lat, Lng: lng}
					}
					ranked, err := deps.Locations.Search(p.Context, criteria, center)
					if err != nil {
						return nil, err
					}
					limit := p.Args["limit"].(int)
					if limit > 0 && len(ranked) > limit {
						ranked = ranked[:limit]
					}
					out := make([]map[string]interface{}, len(ranked))
					for i, r := range ranked {
						out[i] = locationMap(r.Location)
						if r.DistanceMeters != nil {
							out[i]["distance"] = *r.DistanceMeters
						}
					}
					return out, nil
				},
			},
			"location": &graphql.Field{
				Type:        locationType,
				Description: "Get a location by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					loc, err := deps.Locations.GetByID(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return locationMap(*loc), nil
				},
			},
			"categories": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Categories present in the pool",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Locations.KnownCategories(p.Context)
				},
			},
			"trip": &graphql.Field{
				Type:        tripType,
				Description: "The trip of a session",
				Args:        graphql.FieldConfigArgument{"session": sessionArg},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					planner, err := deps.Sessions.Resume(p.Context, p.Args["session"].(string))
					if err != nil {
						return nil, err
					}
					return tripMap(planner), nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"addStop": &graphql.Field{
				Type:        tripType,
				Description: "Append a location to the trip",
				Args: graphql.FieldConfigArgument{
					"session":     sessionArg,
					"location_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					planner, err := deps.Sessions.Resume(p.Context, p.Args["session"].(string))
					if err != nil {
						return nil, err
					}
					loc, err := deps.Locations.GetByID(p.Context, p.Args["location_id"].(string))
					if err != nil {
						return nil, err
					}
					if err := planner.AddStop(p.Context, *loc); err != nil {
						return nil, err
					}
					return tripMap(planner), nil
				},
			},
			"removeStop": &graphql.Field{
				Type:        tripType,
				Description: "Remove a stop by its stop id",
				Args: graphql.FieldConfigArgument{
					"session": sessionArg,
					"stop_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					planner, err := deps.Sessions.Resume(p.Context, p.Args["session"].(string))
					if err != nil {
						return nil, err
					}
					planner.RemoveStop(p.Context, p.Args["stop_id"].(string))
					return tripMap(planner), nil
				},
			},
			"reorderStops": &graphql.Field{
				Type: tripType,
				Args: graphql.FieldConfigArgument{
					"session": sessionArg,
					"from":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"to":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					planner, err := deps.Sessions.Resume(p.Context, p.Args["session"].(string))
					if err != nil {
						return nil, err
					}
					planner.ReorderStops(p.Context, p.Args["from"].(int), p.Args["to"].(int))
					return tripMap(planner), nil
				},
			},
			"toggleOptimization": &graphql.Field{
				Type: tripType,
				Args: graphql.FieldConfigArgument{"session": sessionArg},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					planner, err := deps.Sessions.Resume(p.Context, p.Args["session"].(string))
					if err != nil {
						return nil, err
					}
					planner.ToggleRouteOptimization(p.Context)
					return tripMap(planner), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
