// Package report defines the external request and response shapes and
// projects the pipeline records into the response.
package report

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/accident.report/internal/accidenttype"
	"github.com/banshee-data/accident.report/internal/fault"
	"github.com/banshee-data/accident.report/internal/meta"
	"github.com/banshee-data/accident.report/internal/monitoring"
	"github.com/banshee-data/accident.report/internal/timeline"
)

// Default fault split used when the case table has no row for the code.
const (
	DefaultFaultA = 0
	DefaultFaultB = 100
)

// Request is the analysis request body.
type Request struct {
	UserID       int64  `json:"userId"`
	VideoID      int64  `json:"videoId"`
	FileName     string `json:"fileName"`
	PresignedURL string `json:"presignedUrl"`
}

// Validate checks the request before any work is done.
func (r Request) Validate() error {
	var errs []error
	if r.UserID <= 0 {
		errs = append(errs, errors.New("userId must be positive"))
	}
	if r.VideoID <= 0 {
		errs = append(errs, errors.New("videoId must be positive"))
	}
	if strings.TrimSpace(r.FileName) == "" {
		errs = append(errs, errors.New("fileName is required"))
	}
	u, err := url.Parse(r.PresignedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("presignedUrl must be an http(s) URL"))
	}
	return errors.Join(errs...)
}

// TimelineEvent is one response timeline entry.
type TimelineEvent struct {
	Event    string `json:"event"`
	FrameIdx int    `json:"frameIdx"`
}

// Response is the analysis result returned to the caller.
type Response struct {
	UserID         int64           `json:"userId"`
	VideoID        int64           `json:"videoId"`
	FileName       string          `json:"fileName"`
	CarAProgress   string          `json:"carAProgress"`
	CarBProgress   string          `json:"carBProgress"`
	FaultA         int             `json:"faultA"`
	FaultB         int             `json:"faultB"`
	EventTimeline  []TimelineEvent `json:"eventTimeline"`
	AccidentType   int             `json:"accidentType"`
	DamageLocation string          `json:"damageLocation"`

	RunID            string `json:"runId,omitempty"`
	AccidentTypeCode string `json:"accidentTypeCode,omitempty"`
	FaultResolved    bool   `json:"faultResolved"`
	DamageSource     string `json:"damageSource,omitempty"`
	AccidentPlace    string `json:"accidentPlace,omitempty"`
	AccidentFeature  string `json:"accidentFeature,omitempty"`
	Title            string `json:"title,omitempty"`
	Laws             string `json:"laws,omitempty"`
	Precedents       string `json:"precedents,omitempty"`
}

// Inputs are the records the assembler consumes.
type Inputs struct {
	RunID      string
	Request    Request
	Descriptor meta.Descriptor
	Timeline   timeline.Result
	Type       accidenttype.Result
	Fault      fault.Outcome
}

// Assemble builds the response. Missing values are replaced by safe
// defaults; an unresolved fault split becomes DefaultFaultA/DefaultFaultB.
func Assemble(in Inputs) Response {
	resp := Response{
		UserID:         in.Request.UserID,
		VideoID:        in.Request.VideoID,
		FileName:       in.Request.FileName,
		RunID:          in.RunID,
		CarAProgress:   orDefault(in.Descriptor.VehicleADirection, meta.GoStraight),
		CarBProgress:   orDefault(string(in.Descriptor.VehicleBDirection), "unknown"),
		EventTimeline:  make([]TimelineEvent, 0, len(in.Timeline.Events)),
		DamageLocation: orDefault(in.Fault.DamageLocation, in.Descriptor.DamageLocation),
		DamageSource:   string(in.Descriptor.DamageSource),
	}
	for _, e := range in.Timeline.Events {
		resp.EventTimeline = append(resp.EventTimeline, TimelineEvent{Event: e.Label, FrameIdx: e.Frame})
	}

	code := orDefault(in.Fault.Code, in.Type.Code)
	resp.AccidentTypeCode = code
	if n, err := strconv.Atoi(code); err == nil {
		resp.AccidentType = n
	}

	if in.Fault.Resolved() {
		resp.FaultA, resp.FaultB = *in.Fault.FaultA, *in.Fault.FaultB
		resp.FaultResolved = true
	} else {
		monitoring.Logf("[report] fault split for accident type %q unresolved; defaulting to %d/%d", code, DefaultFaultA, DefaultFaultB)
		resp.FaultA, resp.FaultB = DefaultFaultA, DefaultFaultB
	}

	if c := in.Fault.Case; c != nil {
		resp.AccidentPlace = c.Place
		resp.AccidentFeature = c.Feature
		resp.Title = c.Title
		resp.Laws = c.Laws
		resp.Precedents = c.Precedents
	}
	return resp
}

// Canned returns a fixed response for integration testing of callers.
func Canned(req Request) Response {
	return Response{
		UserID:       req.UserID,
		VideoID:      req.VideoID,
		FileName:     req.FileName,
		CarAProgress: meta.GoStraight,
		CarBProgress: "from_right",
		FaultA:       20,
		FaultB:       80,
		EventTimeline: []TimelineEvent{
			{Event: timeline.EventFirstSeen, FrameIdx: 0},
			{Event: timeline.EventAccidentEstimated, FrameIdx: 30},
			{Event: timeline.EventAftermath, FrameIdx: 40},
		},
		AccidentType:     5,
		AccidentTypeCode: "5",
		DamageLocation:   "1,2",
		FaultResolved:    true,
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
