package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// PipelineConfig holds every tunable of the analysis pipeline. Fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// accessors supply the defaults for everything else.
type PipelineConfig struct {
	// Models and reference data
	DetectorModelPath  *string `json:"detector_model_path,omitempty"`
	DirectionModelPath *string `json:"direction_model_path,omitempty"`
	TypeModelPath      *string `json:"type_model_path,omitempty"`
	TypeVocabPath      *string `json:"type_vocab_path,omitempty"`
	LabelMapPath       *string `json:"label_map_path,omitempty"`
	FaultTablePath     *string `json:"fault_table_path,omitempty"`

	// Accelerator
	RequireGPU         *bool   `json:"require_gpu,omitempty"`
	CUDAVisibleDevices *string `json:"cuda_visible_devices,omitempty"`

	// Frame extraction
	HardwareDecode *bool    `json:"hardware_decode,omitempty"`
	MaxFPS         *float64 `json:"max_fps,omitempty"` // 0 keeps the source rate

	// Detector
	DetectorBatchSize   *int     `json:"detector_batch_size,omitempty"`
	LoaderWorkers       *int     `json:"loader_workers,omitempty"`
	DetectorInputSize   *int     `json:"detector_input_size,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	NMSThreshold        *float64 `json:"nms_threshold,omitempty"`

	// Ego trajectory
	FlowGridStep          *int     `json:"flow_grid_step,omitempty"`
	CalibrationFrames     *int     `json:"calibration_frames,omitempty"`
	MedianKernel          *int     `json:"median_kernel,omitempty"`
	GaussianSigma         *float64 `json:"gaussian_sigma,omitempty"`
	CollisionThreshold    *float64 `json:"collision_threshold,omitempty"`
	CollisionSmoothWindow *int     `json:"collision_smooth_window,omitempty"`
	RANSACMinQuality      *float64 `json:"ransac_min_quality,omitempty"`
	RANSACReprojThreshold *float64 `json:"ransac_reproj_threshold,omitempty"`
	MOG2History           *int     `json:"mog2_history,omitempty"`
	MOG2VarThreshold      *float64 `json:"mog2_var_threshold,omitempty"`
	MOG2LearningRate      *float64 `json:"mog2_learning_rate,omitempty"`

	// Timeline
	SkipFrames      *int     `json:"skip_frames,omitempty"`
	AftermathOffset *int     `json:"aftermath_offset,omitempty"`
	IoUThreshold    *float64 `json:"iou_threshold,omitempty"`
	MaxBackwardGap  *int     `json:"max_backward_gap,omitempty"`

	// Meta inference
	EgoDirectionWindow    *int     `json:"ego_direction_window,omitempty"`
	EgoDirectionThreshold *float64 `json:"ego_direction_threshold,omitempty"`
	LocationType          *string  `json:"location_type,omitempty"`

	// Accident type classifier
	TypeMaxTokens *int                `json:"type_max_tokens,omitempty"`
	TypeDenylist  map[string][]string `json:"type_denylist,omitempty"`

	RequestTimeout *string `json:"request_timeout,omitempty"` // duration string like "15m"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPipelineConfig returns a config with every field unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultPipelineConfig returns a config with every field populated from the
// built-in defaults.
func DefaultPipelineConfig() *PipelineConfig {
	e := EmptyPipelineConfig()
	return &PipelineConfig{
		DetectorModelPath:     ptrString(e.GetDetectorModelPath()),
		DirectionModelPath:    ptrString(e.GetDirectionModelPath()),
		TypeModelPath:         ptrString(e.GetTypeModelPath()),
		TypeVocabPath:         ptrString(e.GetTypeVocabPath()),
		LabelMapPath:          ptrString(e.GetLabelMapPath()),
		FaultTablePath:        ptrString(e.GetFaultTablePath()),
		RequireGPU:            ptrBool(e.GetRequireGPU()),
		CUDAVisibleDevices:    ptrString(e.GetCUDAVisibleDevices()),
		HardwareDecode:        ptrBool(e.GetHardwareDecode()),
		MaxFPS:                ptrFloat64(e.GetMaxFPS()),
		DetectorBatchSize:     ptrInt(e.GetDetectorBatchSize()),
		LoaderWorkers:         ptrInt(e.GetLoaderWorkers()),
		DetectorInputSize:     ptrInt(e.GetDetectorInputSize()),
		ConfidenceThreshold:   ptrFloat64(e.GetConfidenceThreshold()),
		NMSThreshold:          ptrFloat64(e.GetNMSThreshold()),
		FlowGridStep:          ptrInt(e.GetFlowGridStep()),
		CalibrationFrames:     ptrInt(e.GetCalibrationFrames()),
		MedianKernel:          ptrInt(e.GetMedianKernel()),
		GaussianSigma:         ptrFloat64(e.GetGaussianSigma()),
		CollisionThreshold:    ptrFloat64(e.GetCollisionThreshold()),
		CollisionSmoothWindow: ptrInt(e.GetCollisionSmoothWindow()),
		RANSACMinQuality:      ptrFloat64(e.GetRANSACMinQuality()),
		RANSACReprojThreshold: ptrFloat64(e.GetRANSACReprojThreshold()),
		MOG2History:           ptrInt(e.GetMOG2History()),
		MOG2VarThreshold:      ptrFloat64(e.GetMOG2VarThreshold()),
		MOG2LearningRate:      ptrFloat64(e.GetMOG2LearningRate()),
		SkipFrames:            ptrInt(e.GetSkipFrames()),
		AftermathOffset:       ptrInt(e.GetAftermathOffset()),
		IoUThreshold:          ptrFloat64(e.GetIoUThreshold()),
		MaxBackwardGap:        ptrInt(e.GetMaxBackwardGap()),
		EgoDirectionWindow:    ptrInt(e.GetEgoDirectionWindow()),
		EgoDirectionThreshold: ptrFloat64(e.GetEgoDirectionThreshold()),
		LocationType:          ptrString(e.GetLocationType()),
		TypeMaxTokens:         ptrInt(e.GetTypeMaxTokens()),
		TypeDenylist:          e.GetTypeDenylist(),
		RequestTimeout:        ptrString(e.GetRequestTimeout().String()),
	}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file. The file must
// have a .json extension and be under 1MB. Omitted fields keep their defaults.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory or
// one of its parents. Panics if it cannot be found; intended for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<bin>/ subpackages
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *PipelineConfig) Validate() error {
	positive := []struct {
		name string
		v    *int
	}{
		{"detector_batch_size", c.DetectorBatchSize},
		{"loader_workers", c.LoaderWorkers},
		{"detector_input_size", c.DetectorInputSize},
		{"flow_grid_step", c.FlowGridStep},
		{"calibration_frames", c.CalibrationFrames},
		{"collision_smooth_window", c.CollisionSmoothWindow},
		{"mog2_history", c.MOG2History},
		{"ego_direction_window", c.EgoDirectionWindow},
		{"type_max_tokens", c.TypeMaxTokens},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, *p.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *int
	}{
		{"skip_frames", c.SkipFrames},
		{"aftermath_offset", c.AftermathOffset},
		{"max_backward_gap", c.MaxBackwardGap},
	}
	for _, p := range nonNegative {
		if p.v != nil && *p.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", p.name, *p.v)
		}
	}

	if c.MedianKernel != nil && (*c.MedianKernel <= 0 || *c.MedianKernel%2 == 0) {
		return fmt.Errorf("median_kernel must be a positive odd number, got %d", *c.MedianKernel)
	}

	unit := []struct {
		name string
		v    *float64
	}{
		{"confidence_threshold", c.ConfidenceThreshold},
		{"nms_threshold", c.NMSThreshold},
		{"iou_threshold", c.IoUThreshold},
		{"ransac_min_quality", c.RANSACMinQuality},
		{"mog2_learning_rate", c.MOG2LearningRate},
	}
	for _, u := range unit {
		if u.v != nil && (*u.v < 0 || *u.v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", u.name, *u.v)
		}
	}

	if c.GaussianSigma != nil && *c.GaussianSigma < 0 {
		return fmt.Errorf("gaussian_sigma must be non-negative, got %f", *c.GaussianSigma)
	}
	if c.MaxFPS != nil && *c.MaxFPS < 0 {
		return fmt.Errorf("max_fps must be non-negative, got %f", *c.MaxFPS)
	}

	if c.RequestTimeout != nil && *c.RequestTimeout != "" {
		if _, err := time.ParseDuration(*c.RequestTimeout); err != nil {
			return fmt.Errorf("invalid request_timeout '%s': %w", *c.RequestTimeout, err)
		}
	}
	return nil
}

func (c *PipelineConfig) GetDetectorModelPath() string {
	if c.DetectorModelPath == nil {
		return "resources/models/yolo.onnx"
	}
	return *c.DetectorModelPath
}

func (c *PipelineConfig) GetDirectionModelPath() string {
	if c.DirectionModelPath == nil {
		return "resources/models/direction_bilstm.onnx"
	}
	return *c.DirectionModelPath
}

func (c *PipelineConfig) GetTypeModelPath() string {
	if c.TypeModelPath == nil {
		return "resources/models/vtn.onnx"
	}
	return *c.TypeModelPath
}

func (c *PipelineConfig) GetTypeVocabPath() string {
	if c.TypeVocabPath == nil {
		return "resources/models/vocab.txt"
	}
	return *c.TypeVocabPath
}

func (c *PipelineConfig) GetLabelMapPath() string {
	if c.LabelMapPath == nil {
		return "resources/label_maps/label_map.json"
	}
	return *c.LabelMapPath
}

func (c *PipelineConfig) GetFaultTablePath() string {
	if c.FaultTablePath == nil {
		return "resources/accident_data/accident_data.csv"
	}
	return *c.FaultTablePath
}

func (c *PipelineConfig) GetRequireGPU() bool {
	if c.RequireGPU == nil {
		return false
	}
	return *c.RequireGPU
}

func (c *PipelineConfig) GetCUDAVisibleDevices() string {
	if c.CUDAVisibleDevices == nil {
		return "0"
	}
	return *c.CUDAVisibleDevices
}

func (c *PipelineConfig) GetHardwareDecode() bool {
	if c.HardwareDecode == nil {
		return true
	}
	return *c.HardwareDecode
}

func (c *PipelineConfig) GetMaxFPS() float64 {
	if c.MaxFPS == nil {
		return 0
	}
	return *c.MaxFPS
}

func (c *PipelineConfig) GetDetectorBatchSize() int {
	if c.DetectorBatchSize == nil {
		return 60
	}
	return *c.DetectorBatchSize
}

func (c *PipelineConfig) GetLoaderWorkers() int {
	if c.LoaderWorkers == nil {
		return 8
	}
	return *c.LoaderWorkers
}

func (c *PipelineConfig) GetDetectorInputSize() int {
	if c.DetectorInputSize == nil {
		return 640
	}
	return *c.DetectorInputSize
}

func (c *PipelineConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.25
	}
	return *c.ConfidenceThreshold
}

func (c *PipelineConfig) GetNMSThreshold() float64 {
	if c.NMSThreshold == nil {
		return 0.45
	}
	return *c.NMSThreshold
}

func (c *PipelineConfig) GetFlowGridStep() int {
	if c.FlowGridStep == nil {
		return 15
	}
	return *c.FlowGridStep
}

func (c *PipelineConfig) GetCalibrationFrames() int {
	if c.CalibrationFrames == nil {
		return 60
	}
	return *c.CalibrationFrames
}

func (c *PipelineConfig) GetMedianKernel() int {
	if c.MedianKernel == nil {
		return 11
	}
	return *c.MedianKernel
}

func (c *PipelineConfig) GetGaussianSigma() float64 {
	if c.GaussianSigma == nil {
		return 2.0
	}
	return *c.GaussianSigma
}

func (c *PipelineConfig) GetCollisionThreshold() float64 {
	if c.CollisionThreshold == nil {
		return 5.0
	}
	return *c.CollisionThreshold
}

func (c *PipelineConfig) GetCollisionSmoothWindow() int {
	if c.CollisionSmoothWindow == nil {
		return 11
	}
	return *c.CollisionSmoothWindow
}

func (c *PipelineConfig) GetRANSACMinQuality() float64 {
	if c.RANSACMinQuality == nil {
		return 0.3
	}
	return *c.RANSACMinQuality
}

func (c *PipelineConfig) GetRANSACReprojThreshold() float64 {
	if c.RANSACReprojThreshold == nil {
		return 4.0
	}
	return *c.RANSACReprojThreshold
}

func (c *PipelineConfig) GetMOG2History() int {
	if c.MOG2History == nil {
		return 200
	}
	return *c.MOG2History
}

func (c *PipelineConfig) GetMOG2VarThreshold() float64 {
	if c.MOG2VarThreshold == nil {
		return 16
	}
	return *c.MOG2VarThreshold
}

// GetMOG2LearningRate is the fixed rate at which the background models adapt.
func (c *PipelineConfig) GetMOG2LearningRate() float64 {
	if c.MOG2LearningRate == nil {
		return 0.005
	}
	return *c.MOG2LearningRate
}

func (c *PipelineConfig) GetSkipFrames() int {
	if c.SkipFrames == nil {
		return 30
	}
	return *c.SkipFrames
}

func (c *PipelineConfig) GetAftermathOffset() int {
	if c.AftermathOffset == nil {
		return 10
	}
	return *c.AftermathOffset
}

func (c *PipelineConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.3
	}
	return *c.IoUThreshold
}

// GetMaxBackwardGap is the number of consecutive frames without a matching
// box the first-seen walk tolerates before stopping.
func (c *PipelineConfig) GetMaxBackwardGap() int {
	if c.MaxBackwardGap == nil {
		return 5
	}
	return *c.MaxBackwardGap
}

func (c *PipelineConfig) GetEgoDirectionWindow() int {
	if c.EgoDirectionWindow == nil {
		return 10
	}
	return *c.EgoDirectionWindow
}

func (c *PipelineConfig) GetEgoDirectionThreshold() float64 {
	if c.EgoDirectionThreshold == nil {
		return 5.0
	}
	return *c.EgoDirectionThreshold
}

func (c *PipelineConfig) GetLocationType() string {
	if c.LocationType == nil || *c.LocationType == "" {
		return "t_junction"
	}
	return *c.LocationType
}

func (c *PipelineConfig) GetTypeMaxTokens() int {
	if c.TypeMaxTokens == nil {
		return 512
	}
	return *c.TypeMaxTokens
}

// GetTypeDenylist maps a vehicle-B direction to accident-type codes that are
// inconsistent with it.
func (c *PipelineConfig) GetTypeDenylist() map[string][]string {
	if c.TypeDenylist == nil {
		return map[string][]string{}
	}
	return c.TypeDenylist
}

// GetRequestTimeout bounds one analysis request end to end.
func (c *PipelineConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout == nil || *c.RequestTimeout == "" {
		return 15 * time.Minute
	}
	d, err := time.ParseDuration(*c.RequestTimeout)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}
