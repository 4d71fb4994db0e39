package ocr

import (
    "image"

    "github.com/disintegration/imaging"
)

// ImagePreprocessor 图像预处理接口。识别框坐标需映射回原始栅格,
// 因此管道只允许不改变几何的步骤。
type ImagePreprocessor interface {
    Process(img image.Image) (image.Image, error)
}

func defaultPreprocessors() []ImagePreprocessor {
    return []ImagePreprocessor{
        NewGrayscaleProcessor(),
        NewContrastNormalizationProcessor(),
        NewSharpenProcessor(0.5),
    }
}

// 灰度处理器
type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
    return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
    return imaging.Grayscale(img), nil
}

// 对比度处理器
type ContrastNormalizationProcessor struct{}

func NewContrastNormalizationProcessor() *ContrastNormalizationProcessor {
    return &ContrastNormalizationProcessor{}
}

func (p *ContrastNormalizationProcessor) Process(img image.Image) (image.Image, error) {
    return imaging.AdjustContrast(img, 20), nil
}

// 锐化处理器
type SharpenProcessor struct {
    strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
    return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
    return imaging.Sharpen(img, p.strength), nil
}
