package core

// ReferenceCatalog returns the element sets of the reference satellites shown
// around the mission for context.
func ReferenceCatalog() []ElementSet {
	return []ElementSet{
		{
			Name:  "CALSPHERE 1",
			Line1: "1 00900U 64063C   25275.83201927  .00001327  00000+0  13502-2 0  9996",
			Line2: "2 00900  90.2161  65.8158 0024870 355.4150 100.2459 13.76223249 36028",
		},
		{
			Name:  "CALSPHERE 2",
			Line1: "1 00902U 64063E   25275.95814793  .00000108  00000+0  14985-3 0  9995",
			Line2: "2 00902  90.2288  69.7235 0016689 252.3543 227.5740 13.52873766821486",
		},
		{
			Name:  "LCS 1",
			Line1: "1 01361U 65034C   25275.77916527  .00000001  00000+0 -99501-3 0  9992",
			Line2: "2 01361  32.1419  68.1942 0013575 290.8518  69.0525  9.89309326184398",
		},
		{
			Name:  "TEMPSAT 1",
			Line1: "1 01512U 65065E   25275.58393454  .00000079  00000+0  14230-3 0  9991",
			Line2: "2 01512  89.9866 212.7336 0067698 251.7507 283.5487 13.33573483925715",
		},
		{
			Name:  "CALSPHERE 4A",
			Line1: "1 01520U 65065H   25275.94629242  .00000182  00000+0  33021-3 0  9991",
			Line2: "2 01520  89.9113 124.8636 0071176 108.9744 359.7841 13.36220042928353",
		},
		{
			Name:  "OPS 5712 (P/L 160)",
			Line1: "1 02826U 67053A   25275.89256548  .00015908  00000+0  25142-2 0  9995",
			Line2: "2 02826  69.9196 306.5920 0004067 330.0450  30.0462 14.72380956 28287",
		},
		{
			Name:  "LES-5",
			Line1: "1 02866U 67066E   25275.67263244 -.00000044  00000+0  00000+0 0  9999",
			Line2: "2 02866   2.0289 105.2071 0053535 195.6817 111.6761  1.09425015128213",
		},
		{
			Name:  "SURCAL 159",
			Line1: "1 02872U 67053F   25275.93974780  .00000257  00000+0  21262-3 0  9997",
			Line2: "2 02872  69.9745 194.7332 0003766  89.0596 271.0943 13.99510262974216",
		},
		{
			Name:  "OPS 5712 (P/L 153)",
			Line1: "1 02874U 67053H   25275.46870473  .00000129  00000+0  13119-3 0  9991",
			Line2: "2 02874  69.9737 307.6848 0007349 194.3811 165.7087 13.96771398970790",
		},
		{
			Name:  "SURCAL 150B",
			Line1: "1 02909U 67053J   25275.90117486  .00886030  00000+0  90969-2 0  9997",
			Line2: "2 02909  69.9075 176.0900 0014535 182.5865 177.5254 15.62278186 42298",
		},
		{
			Name:  "OPS 3811 (DSP 2)",
			Line1: "1 05204U 71039A   25275.75349282 -.00000083  00000+0  00000+0 0  9992",
			Line2: "2 05204   0.4671 299.2228 0022011 341.5617 209.8666  0.98161237203704",
		},
	}
}
