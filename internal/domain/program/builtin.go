package program

// weeklyUnits - проекты по неделям для программ из четырёх этапов.
var weeklyUnits = []string{"week-1", "week-2", "week-3", "week-4"}

// Builtin возвращает встроенный каталог программ SkillNova.
func Builtin() []Program {
	return []Program{
		{
			ID:                "web-development",
			Title:             "Web Development",
			StageTasks:        []string{"https://docs.google.com/forms/d/e/1FAIpQLScheF-rGdySwRWrg-ARZoxUi1ncwrYnLdWtua3nx9U3TfNocg/viewform", "", "", ""},
			Units:             weeklyUnits,
			DurationUnits:     1,
			DetailsAttachment: "web-dev.pdf",
		},
		{
			ID:            "android-app-development",
			Title:         "Android App Development",
			StageTasks:    []string{"https://docs.google.com/forms/d/e/1FAIpQLSeojl8IdBaergAV62-sEYboyDssugt86WvjOJZGZUdPkhKT7A/viewform", "", "", ""},
			Units:         weeklyUnits,
			DurationUnits: 1,
		},
		{
			ID:                "data-science",
			Title:             "Data Science",
			StageTasks:        []string{"https://docs.google.com/forms/d/e/1FAIpQLSeMHIkZ1MDPsGSgHyA6waUw4xvnnNj9C-rb1qAcUhdjboeubA/viewform", "", "", ""},
			Units:             weeklyUnits,
			DurationUnits:     1,
			DetailsAttachment: "data-science.pdf",
		},
		{
			ID:                "java-programming",
			Title:             "Java Programming",
			StageTasks:        []string{"", "", "", ""},
			Units:             weeklyUnits,
			DurationUnits:     1,
			DetailsAttachment: "java-prog.pdf",
		},
		{
			ID:                "python-programming",
			Title:             "Python Programming",
			StageTasks:        []string{"https://docs.google.com/forms/d/e/1FAIpQLSc0POGnXXdgBoJwry0c5zMT3cHJ5NFaZQB2pi4Iv3n55kS-jA/viewform", "", "", ""},
			Units:             weeklyUnits,
			DurationUnits:     1,
			DetailsAttachment: "Python.pdf",
		},
		{
			ID:                "cpp-programming",
			Title:             "C++ Programming",
			StageTasks:        []string{"https://docs.google.com/forms/d/e/1FAIpQLSdoIrEig_S3hcppQcLn1DJe2BN7n7JTzTyJMLDmZYQOlmE5oA/viewform", "", "", ""},
			Units:             weeklyUnits,
			DurationUnits:     1,
			DetailsAttachment: "c++prog.pdf",
		},
		{
			ID:                "ui-ux-design",
			Title:             "UI/UX Design",
			StageTasks:        []string{"", "", "", ""},
			Units:             weeklyUnits,
			DurationUnits:     1,
			DetailsAttachment: "ui-ux.pdf",
		},
		{
			ID:                "artificial-intelligence",
			Title:             "Artificial Intelligence",
			StageTasks:        []string{"https://docs.google.com/forms/d/e/1FAIpQLSexkJ8XfsKvrDs3RIhAU0T6Om-urNKLERXSPUBKiN3YoNbMDg/viewform", "", "", ""},
			Units:             weeklyUnits,
			DurationUnits:     1,
			DetailsAttachment: "ai.pdf",
		},
		{
			ID:                "machine-learning",
			Title:             "Machine Learning",
			StageTasks:        []string{"https://docs.google.com/forms/d/e/1FAIpQLSeImUGzaT735c9aDF6g_XYEz35kVf8KGk2CCzDXYWIBeOgFqA/viewform", "", "", ""},
			Units:             weeklyUnits,
			DurationUnits:     1,
			DetailsAttachment: "ML.pdf",
		},
	}
}
