package modules

import "fmt"

// Module names.
const (
	GenericInputExtractor    = "generic_input_extractor"
	GenericFeatureSelector   = "generic_feature_selector"
	DiscountFeatureExtractor = "discount_feature_extractor"
	SVR                      = "svr"
	OutputToTSV              = "output_to_tsv"
	PlotPredictions          = "plot_predictions"
	DiscountFeatures         = "discount_features"
)

// Registry resolves module names to implementations bound to one set of resources.
type Registry struct {
	res *Resources
}

// NewRegistry creates a registry over res.
func NewRegistry(res *Resources) *Registry {
	if res == nil {
		res = &Resources{}
	}
	return &Registry{res: res}
}

// Resources returns the resources modules are bound to.
func (r *Registry) Resources() *Resources {
	return r.res
}

// InputExtractor returns the named input extractor.
func (r *Registry) InputExtractor(name string) (InputExtractor, error) {
	switch name {
	case GenericInputExtractor:
		return &InputExtractorModule{res: r.res}, nil
	default:
		return nil, fmt.Errorf("%w: input extractor %q", ErrUnknownModule, name)
	}
}

// FeatureExtractor returns the named feature extractor.
func (r *Registry) FeatureExtractor(name string) (FeatureExtractor, error) {
	switch name {
	case GenericFeatureSelector:
		return &FeatureSelectorModule{res: r.res}, nil
	case DiscountFeatureExtractor:
		return &DiscountExtractorModule{res: r.res}, nil
	default:
		return nil, fmt.Errorf("%w: feature extractor %q", ErrUnknownModule, name)
	}
}

// Model returns the named model.
func (r *Registry) Model(name string) (Model, error) {
	switch name {
	case SVR:
		return &SVRModule{res: r.res}, nil
	default:
		return nil, fmt.Errorf("%w: model %q", ErrUnknownModule, name)
	}
}

// Output returns the named output module.
func (r *Registry) Output(name string) (Output, error) {
	switch name {
	case OutputToTSV:
		return &TSVOutputModule{res: r.res}, nil
	case PlotPredictions:
		return &PlotOutputModule{res: r.res}, nil
	default:
		return nil, fmt.Errorf("%w: output %q", ErrUnknownModule, name)
	}
}

// Transformation returns the named transformation.
func (r *Registry) Transformation(name string) (Transformation, error) {
	switch name {
	case DiscountFeatures:
		return &DiscountTransformModule{res: r.res}, nil
	default:
		return nil, fmt.Errorf("%w: transformation %q", ErrUnknownModule, name)
	}
}
