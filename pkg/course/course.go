// Package course reads the course definitions of a track from a yaml file.
//
// Layout of the file:
//
//	Tracks:
//	  <track>:
//	    Courses:
//	      <course name>:
//	        FinishLine:
//	          - [x, y, z]
//	          - [x, y, z]
//	        StartingSlots:
//	          - Leader:
//	              Position: [x, y, z]
//	              Heading: 0
//	            Follower:
//	              Position: [x, y, z]
//	              Heading: 0
package course

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/touge-service-manager-go/pkg/model"
)

var (
	ErrTrackNotFound = errors.New("track not found")
	ErrNoCourses     = errors.New("no courses defined")
)

const sample = `Tracks:
  your_track_name_here:
    Courses:
      Sample Course Name:
        FinishLine:
          - [0.0, 0.0, 0.0]
          - [0.0, 0.0, 0.0]
        StartingSlots:
          - Leader:
              Position: [0.0, 0.0, 0.0]
              Heading: 0
            Follower:
              Position: [0.0, 0.0, 0.0]
              Heading: 0
`

type (
	fileData struct {
		Tracks map[string]trackData `yaml:"Tracks"`
	}
	trackData struct {
		// kept as node to preserve the order of the courses
		Courses yaml.Node `yaml:"Courses"`
	}
	courseData struct {
		FinishLine    [][]float64 `yaml:"FinishLine"`
		StartingSlots []slotData  `yaml:"StartingSlots"`
	}
	slotData struct {
		Leader   spawnData `yaml:"Leader"`
		Follower spawnData `yaml:"Follower"`
	}
	spawnData struct {
		Position []float64 `yaml:"Position"`
		Heading  float64   `yaml:"Heading"`
	}
)

// Courses holds the courses of one track in file order.
type Courses struct {
	Track string
	list  []*model.Course
}

func (c *Courses) All() []*model.Course {
	return c.list
}

func (c *Courses) Names() []string {
	ret := make([]string, len(c.list))
	for i, item := range c.list {
		ret[i] = item.Name
	}
	return ret
}

// Get returns the course with the given name or nil.
func (c *Courses) Get(name string) *model.Course {
	for _, item := range c.list {
		if item.Name == name {
			return item
		}
	}
	return nil
}

// Default returns the first course of the file.
func (c *Courses) Default() *model.Course {
	if len(c.list) == 0 {
		return nil
	}
	return c.list[0]
}

// TrackName strips the layout prefix of a full track name like
// "csp/3749/../pk_akina/akina_downhill".
func TrackName(full string) string {
	if idx := strings.LastIndex(full, "/"); idx >= 0 {
		return full[idx+1:]
	}
	return full
}

// Load reads the courses of track from the file at path. Courses must define
// a finish line unless the finish line of the track is used.
func Load(path, track string, useTrackFinish bool) (*Courses, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ret, err := Parse(data, track, useTrackFinish)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ret, nil
}

// WriteSample creates a course file template at path.
func WriteSample(path string) error {
	//nolint:gosec // config file
	return os.WriteFile(path, []byte(sample), 0o644)
}

func Parse(data []byte, track string, useTrackFinish bool) (*Courses, error) {
	var f fileData
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse course file: %w", err)
	}
	t, ok := f.Tracks[track]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, track)
	}
	node := &t.Courses
	if node.Kind != yaml.MappingNode || len(node.Content) == 0 {
		return nil, fmt.Errorf("%w for track %s", ErrNoCourses, track)
	}

	ret := &Courses{Track: track}
	var errs error
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var cd courseData
		if err := node.Content[i+1].Decode(&cd); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("course %s: %w", name, err))
			continue
		}
		c, err := cd.toModel(name, useTrackFinish)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		ret.list = append(ret.list, c)
	}
	if errs != nil {
		return nil, errs
	}
	return ret, nil
}

func (cd courseData) toModel(name string, useTrackFinish bool) (*model.Course, error) {
	ret := &model.Course{Name: name}
	var errs error
	if len(cd.StartingSlots) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("course %s: no starting slots", name))
	}
	for i, s := range cd.StartingSlots {
		leader, err := s.Leader.toModel()
		if err != nil {
			errs = multierr.Append(errs,
				fmt.Errorf("course %s: slot %d leader: %w", name, i, err))
		}
		follower, err := s.Follower.toModel()
		if err != nil {
			errs = multierr.Append(errs,
				fmt.Errorf("course %s: slot %d follower: %w", name, i, err))
		}
		ret.StartingSlots = append(ret.StartingSlots,
			model.StartingSlot{Leader: leader, Follower: follower})
	}
	switch {
	case len(cd.FinishLine) == 0:
		if !useTrackFinish {
			errs = multierr.Append(errs, fmt.Errorf("course %s: finish line missing", name))
		}
	case len(cd.FinishLine) != 2:
		errs = multierr.Append(errs,
			fmt.Errorf("course %s: finish line needs 2 points, got %d", name, len(cd.FinishLine)))
	default:
		var line model.FinishLine
		for i, p := range cd.FinishLine {
			v, err := toVec3(p)
			if err != nil {
				errs = multierr.Append(errs,
					fmt.Errorf("course %s: finish line point %d: %w", name, i, err))
			}
			line[i] = model.Vec2{X: v.X, Y: v.Z}
		}
		ret.FinishLine = &line
	}
	if errs != nil {
		return nil, errs
	}
	return ret, nil
}

func (s spawnData) toModel() (model.CarSpawn, error) {
	v, err := toVec3(s.Position)
	if err != nil {
		return model.CarSpawn{}, err
	}
	return model.CarSpawn{Position: v, Heading: s.Heading}, nil
}

func toVec3(p []float64) (model.Vec3, error) {
	if len(p) != 3 {
		return model.Vec3{}, fmt.Errorf("position needs 3 values, got %d", len(p))
	}
	return model.Vec3{X: p[0], Y: p[1], Z: p[2]}, nil
}
