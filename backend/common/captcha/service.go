// Package captcha 图形验证码生成
package captcha

import (
	"bytes"
	"fmt"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/mojocn/base64Captcha"
)

// Alphabet 验证码字符集，去掉了容易混淆的 0/O、1/I/L
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Generator 生成一组验证码文本和对应的图片
type Generator interface {
	Generate() (text string, image []byte, err error)
}

// Options 验证码图片参数
type Options struct {
	Width       int
	Height      int
	Length      int
	NoiseCount  int
	JpegQuality int
}

// DefaultOptions 默认参数：120x40，4个字符
func DefaultOptions() Options {
	return Options{
		Width:       120,
		Height:      40,
		Length:      4,
		NoiseCount:  30,
		JpegQuality: 85,
	}
}

// CaptchaService 基于base64Captcha的图形验证码生成器，输出JPEG
type CaptchaService struct {
	driver  *base64Captcha.DriverString
	quality int
}

// NewCaptchaService 创建图形验证码生成器
func NewCaptchaService(opts Options) *CaptchaService {
	driver := &base64Captcha.DriverString{
		Height:          opts.Height,
		Width:           opts.Width,
		NoiseCount:      opts.NoiseCount,
		ShowLineOptions: base64Captcha.OptionShowHollowLine | base64Captcha.OptionShowSlimeLine,
		Length:          opts.Length,
		Source:          Alphabet,
		BgColor:         &color.RGBA{R: 240, G: 240, B: 246, A: 255},
		Fonts:           []string{"Comismsh.ttf"},
	}

	return &CaptchaService{
		driver:  driver.ConvertFonts(),
		quality: opts.JpegQuality,
	}
}

// Generate 生成验证码文本和JPEG图片
func (c *CaptchaService) Generate() (string, []byte, error) {
	_, content, answer := c.driver.GenerateIdQuestionAnswer()

	item, err := c.driver.DrawCaptcha(content)
	if err != nil {
		return "", nil, fmt.Errorf("绘制验证码失败: %w", err)
	}

	// base64Captcha 输出PNG，这里转成JPEG
	var pngBuf bytes.Buffer
	if _, err := item.WriteTo(&pngBuf); err != nil {
		return "", nil, fmt.Errorf("写出验证码图片失败: %w", err)
	}
	img, err := png.Decode(&pngBuf)
	if err != nil {
		return "", nil, fmt.Errorf("解码验证码图片失败: %w", err)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return "", nil, fmt.Errorf("编码JPEG失败: %w", err)
	}

	return answer, out.Bytes(), nil
}
