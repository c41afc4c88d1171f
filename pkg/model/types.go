package model

import (
	"fmt"
	"strings"
)

type RulesetType int

const (
	RulesetBattleStage RulesetType = iota
	RulesetCatAndMouse
)

type RaceType int

const (
	RaceTypeCourse RaceType = iota
	RaceTypeOutrun
)

func (r RulesetType) String() string {
	switch r {
	case RulesetBattleStage:
		return "BattleStage"
	case RulesetCatAndMouse:
		return "CatAndMouse"
	}
	return fmt.Sprintf("RulesetType(%d)", int(r))
}

func ParseRulesetType(s string) (RulesetType, error) {
	switch strings.ToLower(s) {
	case "battlestage", "battle-stage":
		return RulesetBattleStage, nil
	case "catandmouse", "cat-and-mouse":
		return RulesetCatAndMouse, nil
	}
	return 0, fmt.Errorf("unknown ruleset %q", s)
}

func (r RaceType) String() string {
	switch r {
	case RaceTypeCourse:
		return "Course"
	case RaceTypeOutrun:
		return "Outrun"
	}
	return fmt.Sprintf("RaceType(%d)", int(r))
}

func ParseRaceType(s string) (RaceType, error) {
	switch strings.ToLower(s) {
	case "course":
		return RaceTypeCourse, nil
	case "outrun":
		return RaceTypeOutrun, nil
	}
	return 0, fmt.Errorf("unknown race type %q", s)
}
