package keypoints

import (
	"encoding/json"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/visualalign/rimage"
)

// ORBConfig contains the parameters / configs needed to compute ORB features.
type ORBConfig struct {
	Layers          int `json:"n_layers"`
	DownscaleFactor int `json:"downscale_factor"`
	// MaxFeaturesPerLayer caps the number of corners kept per pyramid level. 0 keeps them all.
	MaxFeaturesPerLayer int          `json:"max_features_per_layer"`
	FastConf            *FASTConfig  `json:"fast"`
	BRIEFConf           *BRIEFConfig `json:"brief"`
}

// DefaultORBConfig returns a three level ORB with 500 corners per level.
func DefaultORBConfig() *ORBConfig {
	return &ORBConfig{
		Layers:              3,
		DownscaleFactor:     2,
		MaxFeaturesPerLayer: 500,
		FastConf:            DefaultFASTConfig(),
		BRIEFConf:           DefaultBRIEFConfig(),
	}
}

// LoadORBConfiguration loads a ORBConfig from a json file.
func LoadORBConfiguration(file string) (*ORBConfig, error) {
	var config ORBConfig
	filePath := filepath.Clean(file)
	//nolint:gosec
	configFile, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	jsonParser := json.NewDecoder(configFile)
	err = jsonParser.Decode(&config)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing ORB config %q", file)
	}
	err = config.Validate(file)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate ensures all parts of the ORBConfig are valid.
func (config *ORBConfig) Validate(path string) error {
	if config.Layers < 1 {
		return utils.NewConfigValidationError(path, errors.New("n_layers should be >= 1"))
	}
	if config.DownscaleFactor <= 1 {
		return utils.NewConfigValidationError(path, errors.New("downscale_factor should be greater than 1"))
	}
	if config.MaxFeaturesPerLayer < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_features_per_layer should be >= 0"))
	}
	if config.FastConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "fast")
	}
	if config.BRIEFConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "brief")
	}
	if err := config.FastConf.Validate(path + ".fast"); err != nil {
		return err
	}
	return config.BRIEFConf.Validate(path + ".brief")
}

// ImagePyramid holds successively downscaled copies of an image and their scale relative to it.
type ImagePyramid struct {
	Images []*image.Gray
	Scales []float64
}

// GetImagePyramid builds up to numLevels levels, each one downscaleFactor times smaller than the
// previous. Levels smaller than minSize in either dimension are not built.
func GetImagePyramid(img *image.Gray, numLevels, downscaleFactor, minSize int) *ImagePyramid {
	pyramid := &ImagePyramid{
		Images: []*image.Gray{img},
		Scales: []float64{1},
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	scale := 1.
	for level := 1; level < numLevels; level++ {
		scale *= float64(downscaleFactor)
		lw := int(math.Round(float64(w) / scale))
		lh := int(math.Round(float64(h) / scale))
		if lw < minSize || lh < minSize {
			break
		}
		pyramid.Images = append(pyramid.Images, rimage.ResizeGray(img, lw, lh))
		pyramid.Scales = append(pyramid.Scales, float64(w)/float64(lw))
	}
	return pyramid
}

// ORBDetector computes ORB keypoints. It holds no mutable state once built.
type ORBDetector struct {
	cfg         *ORBConfig
	samplePairs *SamplePairs
}

// NewORBDetector validates cfg and draws the BRIEF sampling pattern.
func NewORBDetector(cfg *ORBConfig) (*ORBDetector, error) {
	if cfg == nil {
		return nil, errors.New("ORB config is nil")
	}
	if err := cfg.Validate("orb"); err != nil {
		return nil, err
	}
	bc := cfg.BRIEFConf
	return &ORBDetector{
		cfg:         cfg,
		samplePairs: GenerateSamplePairs(bc.Sampling, bc.N, bc.PatchSize, bc.Seed),
	}, nil
}

// Detect computes ORB keypoints on any image. Points are in img's pixel coordinates relative to its
// bounds origin. An image without corners yields an empty set and no error.
func (d *ORBDetector) Detect(img image.Image) (*KeypointSet, error) {
	if img == nil {
		return nil, errors.New("cannot detect keypoints in a nil image")
	}
	return ComputeORBKeypoints(rimage.MakeGray(img), d.cfg, d.samplePairs)
}

// ComputeORBKeypoints compute ORB keypoints on gray image.
func ComputeORBKeypoints(im *image.Gray, cfg *ORBConfig, sp *SamplePairs) (*KeypointSet, error) {
	border := cfg.BRIEFConf.patchBorder()
	pyramid := GetImagePyramid(im, cfg.Layers, cfg.DownscaleFactor, 2*border+1)
	out := &KeypointSet{
		Points:       make([]r2.Point, 0),
		Orientations: make([]float64, 0),
		Descriptors:  make([]Descriptor, 0),
	}
	for i, currentImage := range pyramid.Images {
		kps, _ := DetectFAST(currentImage, cfg.FastConf, border, cfg.MaxFeaturesPerLayer)
		if len(kps) == 0 {
			continue
		}
		orientations := computeKeypointsOrientations(currentImage, kps)
		descs, keep, err := ComputeBRIEFDescriptors(currentImage, sp, kps, orientations, cfg.BRIEFConf)
		if err != nil {
			return nil, err
		}
		rescaled := RescaleKeypoints(kps, pyramid.Scales[i])
		for k := range kps {
			if !keep[k] {
				continue
			}
			out.Points = append(out.Points, rescaled[k])
			out.Orientations = append(out.Orientations, orientations[k])
			out.Descriptors = append(out.Descriptors, descs[k])
		}
	}
	return out, nil
}
