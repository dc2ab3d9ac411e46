package ui

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/bep/debounce"
	"go.uber.org/zap"

	"objwatch/internal/config"
	"objwatch/internal/models"
	"objwatch/internal/ui/cwidget"
	"objwatch/processing/capture"
	"objwatch/processing/pipeline"
)

const statInterval = 200 * time.Millisecond

type displayFrame struct {
	frame   image.Image
	overlay image.Image
}

type DetectApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config   *config.Config
	pipeline *pipeline.Pipeline
	logger   *zap.SugaredLogger

	saveConfig func(func())
	latest     atomic.Pointer[displayFrame]
	stopUI     chan struct{}

	dynamicSettings *fyne.Container
	staticSettings  *fyne.Container

	videoCanvas   *canvas.Image
	overlayCanvas *canvas.Image
	banner        *fyne.Container
	statusLabel   *widget.Label
	modelLabel    *widget.Label
	fpsLabel      *widget.Label
	objectsLabel  *widget.Label
	detectionList *widget.List

	detections []models.Detection
}

// CreateApp builds the window. The pipeline is attached in Run so the alert
// callbacks below can be handed to the throttle first.
func CreateApp(cfg *config.Config, logger *zap.SugaredLogger) *DetectApp {
	a := app.New()
	w := a.NewWindow("Object Watch")

	w.Resize(fyne.NewSize(1200, 700))

	d := &DetectApp{
		fyneApp:    a,
		mainWin:    w,
		config:     cfg,
		logger:     logger,
		saveConfig: debounce.New(time.Second),
	}

	bannerText := canvas.NewText("Person Detected!", theme.Color(theme.ColorNameForeground))
	bannerText.TextStyle = fyne.TextStyle{Bold: true}
	bannerText.TextSize = 24
	d.banner = container.NewStack(
		canvas.NewRectangle(theme.Color(theme.ColorNameError)),
		container.NewCenter(bannerText),
	)
	d.banner.Hide()

	return d
}

// ShowAlert and HideAlert may be called from any goroutine.
func (a *DetectApp) ShowAlert() {
	fyne.Do(func() { a.banner.Show() })
}

func (a *DetectApp) HideAlert() {
	fyne.Do(func() { a.banner.Hide() })
}

// Display is handed to the detection loop. It only stores the frame; the
// player loop picks it up at the configured rate.
func (a *DetectApp) Display(frame, overlay image.Image, _ models.Snapshot) {
	a.latest.Store(&displayFrame{frame: frame, overlay: overlay})
}

func (a *DetectApp) Run(p *pipeline.Pipeline) {
	a.pipeline = p
	a.dynamicSettings = container.NewVBox()

	sourceTypeSelect := widget.NewSelect(config.SourcesList[:], func(s string) {
		a.config.ActiveSource = config.SourceType(s)
		a.persist()
		a.refreshSettingsUI(s)
	})

	sourceTypeSelect.SetSelected(string(a.config.ActiveSource))

	settingsLabel := widget.NewLabelWithStyle("Configuration", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

	a.videoCanvas = canvas.NewImageFromImage(nil)
	a.videoCanvas.FillMode = canvas.ImageFillContain
	a.videoCanvas.SetMinSize(fyne.NewSize(640, 480))

	a.overlayCanvas = canvas.NewImageFromImage(nil)
	a.overlayCanvas.FillMode = canvas.ImageFillContain

	a.statusLabel = widget.NewLabelWithStyle("No person", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	a.modelLabel = widget.NewLabel("Loading model...")
	a.fpsLabel = widget.NewLabel(a.formatFPS(models.Statistics{}))
	a.objectsLabel = widget.NewLabel(a.formatObjects(0))

	a.detectionList = widget.NewList(
		func() int { return len(a.detections) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, o fyne.CanvasObject) {
			if id < len(a.detections) {
				o.(*widget.Label).SetText(formatDetection(a.detections[id]))
			}
		},
	)

	videoContainer := container.NewBorder(
		container.NewVBox(
			container.NewHBox(a.statusLabel, widget.NewSeparator(), a.fpsLabel, widget.NewSeparator(), a.objectsLabel, widget.NewSeparator(), a.modelLabel),
			a.banner,
		),
		nil, nil, nil,
		container.NewStack(a.videoCanvas, a.overlayCanvas),
	)

	a.setupConfigSettings()

	sidebar := container.NewVBox(
		settingsLabel,
		widget.NewSeparator(),
		widget.NewLabel("Source Type:"),
		sourceTypeSelect,
		widget.NewSeparator(),
		a.dynamicSettings,
		a.staticSettings,
		widget.NewSeparator(),
		container.NewGridWithColumns(2,
			widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), func() {
				a.StartProcessing()
			}),
			widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
				a.StopProcessing()
			}),
		),
	)

	left := container.NewBorder(sidebar, nil, nil, nil,
		container.NewBorder(widget.NewLabel("Detections:"), nil, nil, nil, a.detectionList))

	split := container.NewHSplit(
		container.NewPadded(left),
		container.NewPadded(videoContainer),
	)
	split.SetOffset(0.3)

	a.mainWin.SetContent(split)

	a.refreshSettingsUI(string(a.config.ActiveSource))

	a.mainWin.SetCloseIntercept(func() {
		a.StopProcessing()
		if err := a.config.SaveByDefault(); err != nil {
			a.logger.Warnw("failed to save config", "error", err)
		}
		a.mainWin.Close()
	})

	go a.prepareModel()

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

func (a *DetectApp) prepareModel() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := a.pipeline.PrepareEngine(ctx)
	fyne.Do(func() {
		if err != nil {
			a.logger.Warnw("detection model not ready", "error", err)
			a.modelLabel.SetText("Model unavailable")
			return
		}
		a.modelLabel.SetText("Model ready")
	})
}

func (a *DetectApp) persist() {
	a.saveConfig(func() {
		if err := a.config.SaveByDefault(); err != nil {
			a.logger.Warnw("failed to save config", "error", err)
		}
	})
}

func (a *DetectApp) StopProcessing() {
	a.pipeline.Stop()

	if a.stopUI != nil {
		close(a.stopUI)
		a.stopUI = nil
	}
	a.latest.Store(nil)
}

func (a *DetectApp) StartProcessing() {
	a.StopProcessing()

	if err := a.pipeline.Start(); err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}

	a.stopUI = make(chan struct{})
	go a.runPlayerLoop(a.stopUI)
	go a.runStatLoop(a.stopUI)
}

func (a *DetectApp) runStatLoop(stop <-chan struct{}) {
	uiTicker := time.NewTicker(statInterval)
	defer uiTicker.Stop()

	var seq uint64
	for {
		select {
		case <-uiTicker.C:
			snap := a.pipeline.Store().Latest()
			if snap.Seq == seq {
				continue
			}
			seq = snap.Seq

			fyne.Do(func() { a.showSnapshot(snap) })
		case <-stop:
			return
		}
	}
}

func (a *DetectApp) showSnapshot(snap models.Snapshot) {
	a.fpsLabel.SetText(a.formatFPS(snap.Stats))
	a.objectsLabel.SetText(a.formatObjects(snap.Stats.ObjectCount))

	if snap.Presence.IsPresent {
		a.statusLabel.SetText("Person Detected")
		a.statusLabel.Importance = widget.DangerImportance
	} else {
		a.statusLabel.SetText("No person")
		a.statusLabel.Importance = widget.MediumImportance
	}
	a.statusLabel.Refresh()

	a.detections = snap.Detections
	a.detectionList.Refresh()
}

func (a *DetectApp) formatFPS(s models.Statistics) string {
	if s.FPS == 0 {
		return "FPS: -"
	}
	return fmt.Sprintf("FPS: %d", s.FPS)
}

func (a *DetectApp) formatObjects(n int) string {
	return fmt.Sprintf("Objects: %d", n)
}

func formatDetection(d models.Detection) string {
	b := d.BBox
	return fmt.Sprintf("%s  [%.0f, %.0f, %.0f, %.0f]", d.Label(), b.X, b.Y, b.Width, b.Height)
}

func (a *DetectApp) runPlayerLoop(stop <-chan struct{}) {
	displayFPS := time.Duration(a.config.GetFPS())
	if displayFPS == 0 {
		displayFPS = 30
	}
	displayTicker := time.NewTicker(time.Second / displayFPS)
	defer displayTicker.Stop()

	var shown *displayFrame

	for {
		select {
		case <-displayTicker.C:
			next := a.latest.Load()
			if next == nil || next == shown {
				continue
			}
			shown = next

			fyne.Do(func() {
				a.videoCanvas.Image = next.frame
				a.videoCanvas.Refresh()
				a.overlayCanvas.Image = next.overlay
				a.overlayCanvas.Refresh()
			})

		case <-stop:
			return
		}
	}
}

func (a *DetectApp) setupConfigSettings() {

	a.staticSettings = container.NewVBox()

	fpsInput := cwidget.NewIntInput(
		"FPS",
		"Enter integer",
		int(a.config.GetFPS()),
		func(i int) {
			a.config.SetFPS(uint(i))
			a.persist()
		},
	)

	widthInput := cwidget.NewIntInput(
		"Width",
		"Enter integer",
		a.config.GetWidth(),
		func(i int) {
			a.config.SetWidth(i)
			a.persist()
		},
	)

	heightInput := cwidget.NewIntInput(
		"Height",
		"Enter integer",
		a.config.GetHeight(),
		func(i int) {
			a.config.SetHeight(i)
			a.persist()
		},
	)

	scoreInput := cwidget.NewFloatInput(
		"Min score",
		"0.0 - 1.0",
		a.config.GetMinScore(),
		0, 1,
		func(v float64) {
			a.config.SetMinScore(v)
			a.persist()
		},
	)

	applyCfg := widget.NewButton("Apply", func() {
		a.StartProcessing()
	})

	a.staticSettings.Add(fpsInput)
	a.staticSettings.Add(widthInput)
	a.staticSettings.Add(heightInput)
	a.staticSettings.Add(scoreInput)

	a.staticSettings.Add(applyCfg)

}

func (a *DetectApp) refreshSettingsUI(sourceType string) {
	a.dynamicSettings.Objects = nil
	a.StopProcessing()

	switch config.SourceType(sourceType) {
	case config.SourceLocal:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/video.mp4")
		pathEntry.SetText(a.config.Local.Path)

		pathEntry.OnChanged = func(s string) {
			a.config.Local.Path = s
			a.persist()
		}

		fileBtn := widget.NewButtonWithIcon("Open File", theme.FolderOpenIcon(), func() {
			dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
				if err == nil && reader != nil {
					path := reader.URI().Path()
					reader.Close()
					pathEntry.SetText(path)
				}
			}, a.mainWin)
		})

		a.dynamicSettings.Add(widget.NewLabel("Video Path:"))
		a.dynamicSettings.Add(container.NewBorder(nil, nil, nil, fileBtn, pathEntry))

	case config.SourceWebcam:
		deviceSelect := widget.NewSelect([]string{"Loading cameras..."}, func(s string) {
			if s != "Loading cameras..." && s != "No cameras found" {
				a.config.Webcam.DeviceID = s
				a.persist()
			}
		})
		deviceSelect.SetSelected("Loading cameras...")
		deviceSelect.Disable()

		a.dynamicSettings.Add(widget.NewLabel("Select Camera:"))
		a.dynamicSettings.Add(deviceSelect)
		a.dynamicSettings.Refresh()

		go func() {
			devices, err := capture.ListCameras()

			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, a.mainWin)
					deviceSelect.Options = []string{"Error listing cameras"}
				} else if len(devices) == 0 {
					deviceSelect.Options = []string{"No cameras found"}
				} else {
					deviceSelect.Options = devices
					deviceSelect.Enable()

					if a.config.Webcam.DeviceID != "" {
						deviceSelect.SetSelected(a.config.Webcam.DeviceID)
					} else {
						deviceSelect.SetSelected(devices[0])
					}
				}
				deviceSelect.Refresh()
			})
		}()
	}

	a.dynamicSettings.Refresh()
}
