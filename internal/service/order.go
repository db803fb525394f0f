package service

import "fmt"

// Order validates the declared dependency graph and returns the specs in
// startup order: a service with a predecessor always appears after it.
// Ordering among independent services follows declaration order.
func Order(specs []Spec) ([]Spec, error) {
	byName := make(map[string]int, len(specs))
	for i, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q", s.Name)
		}
		byName[s.Name] = i
	}
	for _, s := range specs {
		if s.DependsOn == "" {
			continue
		}
		if s.DependsOn == s.Name {
			return nil, fmt.Errorf("service %q depends on itself", s.Name)
		}
		if _, ok := byName[s.DependsOn]; !ok {
			return nil, fmt.Errorf("service %q depends on unknown service %q", s.Name, s.DependsOn)
		}
	}

	out := make([]Spec, 0, len(specs))
	placed := make(map[string]bool, len(specs))
	visiting := make(map[string]bool, len(specs))

	var place func(s Spec) error
	place = func(s Spec) error {
		if placed[s.Name] {
			return nil
		}
		if visiting[s.Name] {
			return fmt.Errorf("dependency cycle involving service %q", s.Name)
		}
		visiting[s.Name] = true
		if s.DependsOn != "" {
			if err := place(specs[byName[s.DependsOn]]); err != nil {
				return err
			}
		}
		visiting[s.Name] = false
		placed[s.Name] = true
		out = append(out, s)
		return nil
	}
	for _, s := range specs {
		if err := place(s); err != nil {
			return nil, err
		}
	}
	return out, nil
}
